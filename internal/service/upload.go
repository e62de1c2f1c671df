package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"github.com/openfax/faxd/internal/core"
	"github.com/openfax/faxd/internal/domain/model"
	apperrors "github.com/openfax/faxd/internal/errors"
)

// UploadServiceConfig groups upload validation limits.
type UploadServiceConfig struct {
	MaxSizeBytes int64
	MaxPages     int
}

// UploadServiceOptions groups dependencies for UploadService.
type UploadServiceOptions struct {
	Uploads   core.UploadRepository
	Storage   core.StorageBackend
	Analytics core.AnalyticsRepository
	Config    UploadServiceConfig
	Logger    *slog.Logger
}

// UploadService validates and stores fax documents.
type UploadService struct {
	uploads   core.UploadRepository
	storage   core.StorageBackend
	analytics core.AnalyticsRepository
	config    UploadServiceConfig
	logger    *slog.Logger
}

// NewUploadService constructs a new UploadService.
func NewUploadService(opts UploadServiceOptions) *UploadService {
	if opts.Uploads == nil {
		panic("UploadRepository is required")
	}
	if opts.Storage == nil {
		panic("StorageBackend is required")
	}

	cfg := opts.Config
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = 20 << 20
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &UploadService{
		uploads:   opts.Uploads,
		storage:   opts.Storage,
		analytics: opts.Analytics,
		config:    cfg,
		logger:    logger.With("component", "upload_service"),
	}
}

// Store validates the document bytes, writes them to storage, and records the
// upload metadata. Only PDF documents are accepted; declared content types
// are cross-checked against the file's magic bytes.
func (s *UploadService) Store(
	ctx context.Context,
	content []byte,
	originalFilename string,
	clientIP string,
) (*model.DocumentUpload, error) {
	if len(content) == 0 {
		return nil, apperrors.Validation("upload is empty")
	}
	if int64(len(content)) > s.config.MaxSizeBytes {
		return nil, apperrors.Validationf(
			"upload exceeds %d MB limit", s.config.MaxSizeBytes>>20)
	}

	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return nil, apperrors.Validation(
			"unsupported upload type; upload a PDF document")
	}

	pageCount := countPDFPages(content)
	if pageCount < 1 {
		return nil, apperrors.Validation(
			"upload is not a valid PDF document; try exporting it as PDF again")
	}
	if pageCount > s.config.MaxPages {
		return nil, apperrors.Validationf("maximum %d pages per fax", s.config.MaxPages)
	}

	checksum := sha256.Sum256(content)
	storageKey := uuid.NewString() + ".pdf"

	if err := s.storage.Store(ctx, storageKey, content); err != nil {
		return nil, fmt.Errorf("store upload bytes: %w", err)
	}

	if originalFilename == "" {
		originalFilename = "upload.pdf"
	}

	upload, err := s.uploads.Create(ctx, model.CreateUploadRequest{
		StorageKey:       storageKey,
		MimeType:         "application/pdf",
		OriginalFilename: originalFilename,
		PageCount:        pageCount,
		Checksum:         hex.EncodeToString(checksum[:]),
		FileSizeBytes:    int64(len(content)),
	})
	if err != nil {
		// Orphaned bytes are swept by retention; best-effort cleanup here.
		if _, delErr := s.storage.Delete(ctx, storageKey); delErr != nil {
			s.logger.WarnContext(ctx, "cleanup of orphaned upload failed",
				"storage_key", storageKey, "err", delErr)
		}
		return nil, fmt.Errorf("record upload: %w", err)
	}

	s.logger.InfoContext(ctx, "document uploaded",
		"upload_id", upload.ID, "pages", pageCount, "bytes", len(content))
	s.trackUpload(ctx, upload, clientIP)

	return upload, nil
}

// Serve resolves a public upload request: the storage key must belong to an
// undeleted upload and the bytes must still exist.
func (s *UploadService) Serve(ctx context.Context, storageKey string) ([]byte, *model.DocumentUpload, error) {
	upload, err := s.uploads.GetByStorageKey(ctx, storageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve upload: %w", err)
	}
	if upload.Deleted() {
		return nil, nil, apperrors.NotFound("upload not found")
	}

	content, err := s.storage.Read(ctx, storageKey)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrCodeNotFound, "upload bytes not found")
	}
	return content, upload, nil
}

func (s *UploadService) trackUpload(ctx context.Context, upload *model.DocumentUpload, clientIP string) {
	if s.analytics == nil {
		return
	}

	var ip *string
	if clientIP != "" {
		ip = &clientIP
	}
	if err := s.analytics.Insert(ctx, &model.AnalyticsEvent{
		EventName: "upload_created",
		EntityID:  &upload.ID,
		IPAddress: ip,
	}); err != nil {
		s.logger.DebugContext(ctx, "analytics insert failed", "event", "upload_created", "err", err)
	}
}

var (
	pdfPageTypeRe  = regexp.MustCompile(`/Type\s*/Page\b`)
	pdfPagesRootRe = regexp.MustCompile(`/Type\s*/Pages[^>]*?/Count\s+(\d+)`)
	pdfCountRe     = regexp.MustCompile(`/Count\s+(\d+)`)
)

// countPDFPages counts page objects in the document. Linearized or
// cross-reference-streamed files that hide page objects fall back to the page
// tree's /Count entry. Returns 0 when neither yields a count.
func countPDFPages(content []byte) int {
	if n := len(pdfPageTypeRe.FindAll(content, -1)); n > 0 {
		return n
	}

	if m := pdfPagesRootRe.FindSubmatch(content); m != nil {
		if n, err := strconv.Atoi(string(m[1])); err == nil {
			return n
		}
	}
	if m := pdfCountRe.FindSubmatch(content); m != nil {
		if n, err := strconv.Atoi(string(m[1])); err == nil {
			return n
		}
	}
	return 0
}
