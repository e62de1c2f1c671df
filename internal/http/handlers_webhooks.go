package httpx

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/openfax/faxd/internal/core"
	"github.com/openfax/faxd/internal/service"
)

// Telnyx webhook signature headers.
const (
	headerTelnyxSignature = "telnyx-signature-ed25519"
	headerTelnyxTimestamp = "telnyx-timestamp"
)

// maxWebhookBodyBytes bounds a callback payload. Telnyx events are small;
// anything near this size is not a fax event.
const maxWebhookBodyBytes = 1 << 20

// WebhookHandlers receives provider callbacks, authenticates them, and feeds
// them to the reconciliation engine.
type WebhookHandlers struct {
	Reconcile  *service.ReconcileService
	Verifier   core.WebhookVerifier
	Normalizer core.EventNormalizer
	Logger     *slog.Logger
}

// TelnyxWebhook handles POST /v1/webhooks/telnyx.
//
// Signature failures answer 401 so a misconfigured key is visible in provider
// delivery logs. Malformed payloads answer 400. Normalized events always ack
// 2xx, including duplicates and events for unknown jobs, so the provider
// stops redelivering them.
func (h *WebhookHandlers) TelnyxWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_payload",
			Err:     err,
		})
		return
	}

	if h.Verifier != nil && h.Verifier.Enabled() {
		if err := h.Verifier.Verify(
			payload,
			r.Header.Get(headerTelnyxTimestamp),
			r.Header.Get(headerTelnyxSignature),
		); err != nil {
			if h.Logger != nil {
				h.Logger.WarnContext(r.Context(), "webhook signature rejected", "error", err)
			}
			WriteAppError(w, err)
			return
		}
	}

	event, err := h.Normalizer.Normalize(payload, time.Now().UTC())
	if err != nil {
		WriteAppError(w, err)
		return
	}

	ack, err := h.Reconcile.ApplyProviderEvent(r.Context(), event)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, ack)
}
