package httpx

import (
	"errors"
	"io"
	"net/http"

	"github.com/openfax/faxd/internal/domain/model"
	"github.com/openfax/faxd/internal/service"
)

// SignedURLVerifier checks the exp and sig parameters of a public upload URL.
type SignedURLVerifier interface {
	VerifySignedRequest(storageKey, exp, sig string) bool
}

// UploadHandlers provides HTTP handlers for document uploads.
type UploadHandlers struct {
	Svc *service.UploadService
	// Signer verifies public URL signatures. When nil, the public endpoint
	// serves without signature checks (development mode).
	Signer SignedURLVerifier
	// MaxBodyBytes bounds the multipart request body.
	MaxBodyBytes int64
}

// Upload handles POST /v1/uploads: a multipart form with a single "file" part.
func (h *UploadHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	maxBody := h.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 32 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteError(w, ErrorParams{
				Code:    http.StatusRequestEntityTooLarge,
				ErrCode: "validation",
				Err:     errors.New("upload exceeds the size limit"),
			})
			return
		}
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New(`multipart form with a "file" part is required`),
		})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("could not read the uploaded file"),
		})
		return
	}

	upload, err := h.Svc.Store(r.Context(), content, header.Filename, ClientIP(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, model.UploadResponse{
		DocumentUploadID: upload.ID,
		MimeType:         upload.MimeType,
		PageCount:        upload.PageCount,
		Checksum:         upload.Checksum,
		FileSizeBytes:    upload.FileSizeBytes,
	})
}

// ServePublic handles GET /v1/uploads/public/{storageKey}: the media endpoint
// the fax provider fetches documents from. Requests must carry a valid
// signature unless signing is disabled.
func (h *UploadHandlers) ServePublic(w http.ResponseWriter, r *http.Request) {
	storageKey := r.PathValue("storageKey")
	if storageKey == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("storage key is required"),
		})
		return
	}

	if h.Signer != nil {
		query := r.URL.Query()
		if !h.Signer.VerifySignedRequest(storageKey, query.Get("exp"), query.Get("sig")) {
			WriteError(w, ErrorParams{
				Code:    http.StatusForbidden,
				ErrCode: "invalid_signature",
				Err:     errors.New("signature is missing, invalid, or expired"),
			})
			return
		}
	}

	content, upload, err := h.Svc.Serve(r.Context(), storageKey)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", upload.MimeType)
	w.Header().Set("Content-Disposition", `inline; filename="`+upload.OriginalFilename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		// Client went away mid-transfer; nothing to recover.
		return
	}
}
