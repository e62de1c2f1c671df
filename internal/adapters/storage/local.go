// Package storage provides the document byte store behind upload handling.
// The local backend keeps files on disk and serves them through HMAC-signed
// expiring URLs so the fax provider can fetch documents without credentials.
package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalConfig configures the on-disk backend.
type LocalConfig struct {
	// UploadsPath is the directory stored documents live in. Created on
	// startup if missing.
	UploadsPath string
	// BaseURL is the externally reachable origin used to build public URLs.
	BaseURL string
	// SecretKey signs public URL parameters.
	SecretKey string
	Logger    *slog.Logger
	Now       func() time.Time
}

// Local stores uploaded documents on the local filesystem.
type Local struct {
	uploadsPath string
	baseURL     string
	secretKey   []byte
	logger      *slog.Logger
	now         func() time.Time
}

// NewLocal validates the config and ensures the uploads directory exists.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if strings.TrimSpace(cfg.UploadsPath) == "" {
		return nil, errors.New("uploads path is required")
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("storage secret key is required")
	}

	if err := os.MkdirAll(cfg.UploadsPath, 0o750); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Local{
		uploadsPath: cfg.UploadsPath,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:   []byte(cfg.SecretKey),
		logger:      logger.With("component", "local_storage"),
		now:         now,
	}, nil
}

// path resolves a storage key inside the uploads directory. Keys carrying
// path separators or traversal segments are rejected.
func (l *Local) path(storageKey string) (string, error) {
	if storageKey == "" || storageKey != filepath.Base(storageKey) ||
		strings.HasPrefix(storageKey, ".") {
		return "", fmt.Errorf("invalid storage key %q", storageKey)
	}
	return filepath.Join(l.uploadsPath, storageKey), nil
}

// Store writes the document bytes under the given key.
func (l *Local) Store(_ context.Context, storageKey string, content []byte) error {
	p, err := l.path(storageKey)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, content, 0o640); err != nil {
		return fmt.Errorf("write upload %s: %w", storageKey, err)
	}
	return nil
}

// Exists reports whether a document is stored under the key.
func (l *Local) Exists(_ context.Context, storageKey string) bool {
	p, err := l.path(storageKey)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(p)
	return statErr == nil
}

// Read returns the stored document bytes.
func (l *Local) Read(_ context.Context, storageKey string) ([]byte, error) {
	p, err := l.path(storageKey)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", storageKey, err)
	}
	return content, nil
}

// Delete removes the stored bytes and reports whether anything was removed.
func (l *Local) Delete(ctx context.Context, storageKey string) (bool, error) {
	p, err := l.path(storageKey)
	if err != nil {
		return false, err
	}
	if rmErr := os.Remove(p); rmErr != nil {
		if errors.Is(rmErr, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete upload %s: %w", storageKey, rmErr)
	}
	l.logger.InfoContext(ctx, "deleted stored upload", "storage_key", storageKey)
	return true, nil
}

// PublicURL builds a time-limited signed URL for the serving endpoint.
func (l *Local) PublicURL(storageKey string, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = time.Second
	}
	expiresAt := l.now().Add(ttl).Unix()

	query := url.Values{}
	query.Set("exp", strconv.FormatInt(expiresAt, 10))
	query.Set("sig", l.signature(storageKey, expiresAt))

	return fmt.Sprintf("%s/v1/uploads/public/%s?%s", l.baseURL, url.PathEscape(storageKey), query.Encode())
}

// VerifySignedRequest checks the exp and sig query parameters from a public
// URL against the signing key. Expired or tampered parameters fail.
func (l *Local) VerifySignedRequest(storageKey, exp, sig string) bool {
	if exp == "" || sig == "" {
		return false
	}

	expiresAt, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return false
	}
	if l.now().Unix() > expiresAt {
		return false
	}

	expected := l.signature(storageKey, expiresAt)
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (l *Local) signature(storageKey string, expiresAt int64) string {
	mac := hmac.New(sha256.New, l.secretKey)
	fmt.Fprintf(mac, "%s|%d", storageKey, expiresAt)
	return hex.EncodeToString(mac.Sum(nil))
}
