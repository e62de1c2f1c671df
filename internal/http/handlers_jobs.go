// Package httpx provides the HTTP API of the faxd service.
package httpx

import (
	"errors"
	"net/http"

	"github.com/openfax/faxd/internal/domain/model"
	"github.com/openfax/faxd/internal/service"
)

// FaxJobHandlers provides HTTP handlers for fax job operations.
type FaxJobHandlers struct {
	Jobs   *service.FaxJobService
	Status *service.StatusViewService
}

// CreateJob handles POST /v1/fax/jobs. The job is created and submitted to
// the provider synchronously; the response reflects the submission outcome.
func (h *FaxJobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req model.CreateFaxJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Jobs.Create(r.Context(), req, ClientIP(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, model.CreateFaxJobResponse{
		FaxJobID: job.ID,
		Status:   job.Status,
	})
}

// GetJob handles GET /v1/fax/jobs/{id} and returns the status view: the
// authoritative status plus the display timeline and progress estimate.
func (h *FaxJobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("fax job id is required"),
		})
		return
	}

	job, err := h.Jobs.Get(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	view, err := h.Status.Build(r.Context(), job)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, view)
}

// CancelJob handles POST /v1/fax/jobs/{id}/cancel. Jobs in active
// transmission or already completed answer 409.
func (h *FaxJobHandlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("fax job id is required"),
		})
		return
	}

	job, err := h.Jobs.Cancel(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, model.CreateFaxJobResponse{
		FaxJobID: job.ID,
		Status:   job.Status,
	})
}
