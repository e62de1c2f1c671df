package httpx

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfax/faxd/internal/domain/model"
)

type stubSigner struct{ valid bool }

func (s stubSigner) VerifySignedRequest(_, _, _ string) bool { return s.valid }

func multipartUpload(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadHandler(t *testing.T) {
	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Page >>\nendobj\n%%EOF\n")

	t.Run("accepts a pdf upload", func(t *testing.T) {
		env := newTestEnv()
		router := NewRouter(RouterServices{
			Jobs:      env.jobSvc,
			Uploads:   env.uploadSvc,
			Status:    env.statusSvc,
			Reconcile: env.reconcile,
		})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, multipartUpload(t, "contract.pdf", pdf))

		require.Equal(t, http.StatusCreated, rec.Code)

		var resp model.UploadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.DocumentUploadID)
		assert.Equal(t, 1, resp.PageCount)
		assert.Equal(t, "application/pdf", resp.MimeType)
		assert.Equal(t, int64(len(pdf)), resp.FileSizeBytes)
	})

	t.Run("rejects a request without a file part", func(t *testing.T) {
		env := newTestEnv()
		handler := &UploadHandlers{Svc: env.uploadSvc}

		req := httptest.NewRequest(http.MethodPost, "/v1/uploads", bytes.NewReader(nil))
		rec := httptest.NewRecorder()
		handler.Upload(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects non-pdf content", func(t *testing.T) {
		env := newTestEnv()
		handler := &UploadHandlers{Svc: env.uploadSvc}

		rec := httptest.NewRecorder()
		handler.Upload(rec, multipartUpload(t, "image.gif", []byte("GIF89a...")))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a body over the limit", func(t *testing.T) {
		env := newTestEnv()
		handler := &UploadHandlers{Svc: env.uploadSvc, MaxBodyBytes: 64}

		rec := httptest.NewRecorder()
		handler.Upload(rec, multipartUpload(t, "big.pdf", bytes.Repeat([]byte("x"), 4096)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestServePublicHandler(t *testing.T) {
	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Page >>\nendobj\n%%EOF\n")

	t.Run("serves stored bytes with a valid signature", func(t *testing.T) {
		env := newTestEnv()
		upload := env.seedUpload()
		handler := &UploadHandlers{Svc: env.uploadSvc, Signer: stubSigner{valid: true}}

		req := httptest.NewRequest(http.MethodGet,
			"/v1/uploads/public/"+upload.StorageKey+"?exp=1&sig=abc", nil)
		req.SetPathValue("storageKey", upload.StorageKey)
		rec := httptest.NewRecorder()
		handler.ServePublic(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
	})

	t.Run("rejects an invalid signature", func(t *testing.T) {
		env := newTestEnv()
		upload := env.seedUpload()
		handler := &UploadHandlers{Svc: env.uploadSvc, Signer: stubSigner{valid: false}}

		req := httptest.NewRequest(http.MethodGet, "/v1/uploads/public/"+upload.StorageKey, nil)
		req.SetPathValue("storageKey", upload.StorageKey)
		rec := httptest.NewRecorder()
		handler.ServePublic(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("serves without checks when no signer is configured", func(t *testing.T) {
		env := newTestEnv()
		upload := env.seedUpload()
		handler := &UploadHandlers{Svc: env.uploadSvc}

		req := httptest.NewRequest(http.MethodGet, "/v1/uploads/public/"+upload.StorageKey, nil)
		req.SetPathValue("storageKey", upload.StorageKey)
		rec := httptest.NewRecorder()
		handler.ServePublic(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, pdf, rec.Body.Bytes())
	})

	t.Run("unknown key returns 404", func(t *testing.T) {
		env := newTestEnv()
		handler := &UploadHandlers{Svc: env.uploadSvc}

		req := httptest.NewRequest(http.MethodGet, "/v1/uploads/public/nope.pdf", nil)
		req.SetPathValue("storageKey", "nope.pdf")
		rec := httptest.NewRecorder()
		handler.ServePublic(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
