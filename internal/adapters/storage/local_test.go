package storage

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Local {
	t.Helper()
	backend, err := NewLocal(LocalConfig{
		UploadsPath: t.TempDir(),
		BaseURL:     "https://fax.example.com",
		SecretKey:   "test-secret",
	})
	require.NoError(t, err)
	return backend
}

func TestNewLocalRequiresConfig(t *testing.T) {
	_, err := NewLocal(LocalConfig{SecretKey: "s"})
	require.Error(t, err)

	_, err = NewLocal(LocalConfig{UploadsPath: t.TempDir()})
	require.Error(t, err)
}

func TestStoreReadDeleteRoundTrip(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	content := []byte("%PDF-1.4 test document")

	require.NoError(t, backend.Store(ctx, "doc.pdf", content))
	assert.True(t, backend.Exists(ctx, "doc.pdf"))

	got, err := backend.Read(ctx, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	removed, err := backend.Delete(ctx, "doc.pdf")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, backend.Exists(ctx, "doc.pdf"))

	removed, err = backend.Delete(ctx, "doc.pdf")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStoreRejectsTraversalKeys(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	for _, key := range []string{"", "../escape.pdf", "a/b.pdf", ".hidden"} {
		require.Error(t, backend.Store(ctx, key, []byte("x")), "key %q", key)
		assert.False(t, backend.Exists(ctx, key))
	}
}

func TestPublicURLRoundTrip(t *testing.T) {
	backend := newTestBackend(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return now }

	publicURL := backend.PublicURL("doc.pdf", 15*time.Minute)
	assert.True(t, strings.HasPrefix(publicURL, "https://fax.example.com/v1/uploads/public/doc.pdf?"))

	parsed, err := url.Parse(publicURL)
	require.NoError(t, err)
	exp := parsed.Query().Get("exp")
	sig := parsed.Query().Get("sig")

	assert.Equal(t, strconv.FormatInt(now.Add(15*time.Minute).Unix(), 10), exp)
	assert.True(t, backend.VerifySignedRequest("doc.pdf", exp, sig))
}

func TestVerifySignedRequestRejectsExpired(t *testing.T) {
	backend := newTestBackend(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return now }

	publicURL := backend.PublicURL("doc.pdf", time.Minute)
	parsed, err := url.Parse(publicURL)
	require.NoError(t, err)

	backend.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.False(t, backend.VerifySignedRequest("doc.pdf",
		parsed.Query().Get("exp"), parsed.Query().Get("sig")))
}

func TestVerifySignedRequestRejectsTampering(t *testing.T) {
	backend := newTestBackend(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return now }

	publicURL := backend.PublicURL("doc.pdf", time.Minute)
	parsed, err := url.Parse(publicURL)
	require.NoError(t, err)
	exp := parsed.Query().Get("exp")
	sig := parsed.Query().Get("sig")

	assert.False(t, backend.VerifySignedRequest("other.pdf", exp, sig))
	assert.False(t, backend.VerifySignedRequest("doc.pdf", "9999999999", sig))
	assert.False(t, backend.VerifySignedRequest("doc.pdf", exp, "deadbeef"))
	assert.False(t, backend.VerifySignedRequest("doc.pdf", "", ""))
}
