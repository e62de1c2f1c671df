package httpx

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/openfax/faxd/internal/service"
)

// InternalHandlers exposes operator endpoints guarded by the admin token.
type InternalHandlers struct {
	Retention *service.RetentionService
	// AdminToken authorizes requests. Empty disables all internal endpoints.
	AdminToken string
}

// RetentionRun handles POST /v1/internal/tasks/retention-run: a manual sweep
// for operators, returning what it removed.
func (h *InternalHandlers) RetentionRun(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "unauthenticated",
			Err:     errors.New("valid admin token required"),
		})
		return
	}

	report, err := h.Retention.RunOnce(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "internal",
			Err:     errors.New("retention sweep failed"),
		})
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

func (h *InternalHandlers) authorized(r *http.Request) bool {
	if h.AdminToken == "" {
		return false
	}

	token := r.Header.Get("X-Admin-Token")
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}

	return subtle.ConstantTimeCompare([]byte(token), []byte(h.AdminToken)) == 1
}
