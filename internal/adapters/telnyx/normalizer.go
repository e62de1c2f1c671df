package telnyx

import (
	"encoding/json"
	"fmt"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/openfax/faxd/internal/domain/model"
	apperrors "github.com/openfax/faxd/internal/errors"
)

// ProviderName keys stored webhook events and normalized provider events.
const ProviderName = "telnyx"

// Telnyx wraps the interesting fields in an envelope under "data"; older
// deliveries put them at the top level. Each expression tries both.
const (
	exprEventID    = `data.id || id`
	exprEventType  = `data.event_type || event_type`
	exprOccurredAt = `data.occurred_at || occurred_at`
	exprFaxID      = `data.payload.fax_id || data.payload.id || data.payload.fax.id` +
		` || payload.fax_id || payload.id || payload.fax.id`
	exprStatus        = `data.payload.status || payload.status`
	exprFailureReason = `data.payload.failure_reason || payload.failure_reason`
)

// Normalizer converts raw Telnyx webhook bodies into provider-agnostic events.
type Normalizer struct {
	eventID       jmespath.JMESPath
	eventType     jmespath.JMESPath
	occurredAt    jmespath.JMESPath
	faxID         jmespath.JMESPath
	status        jmespath.JMESPath
	failureReason jmespath.JMESPath
}

// NewNormalizer compiles the payload extraction expressions.
func NewNormalizer() (*Normalizer, error) {
	n := &Normalizer{}
	for _, binding := range []struct {
		dst  *jmespath.JMESPath
		expr string
	}{
		{&n.eventID, exprEventID},
		{&n.eventType, exprEventType},
		{&n.occurredAt, exprOccurredAt},
		{&n.faxID, exprFaxID},
		{&n.status, exprStatus},
		{&n.failureReason, exprFailureReason},
	} {
		compiled, err := jmespath.Compile(binding.expr)
		if err != nil {
			return nil, fmt.Errorf("compile expression %q: %w", binding.expr, err)
		}
		*binding.dst = compiled
	}
	return n, nil
}

// MustNewNormalizer is NewNormalizer that panics on error. The expressions are
// constants, so a failure is a programming error.
func MustNewNormalizer() *Normalizer {
	n, err := NewNormalizer()
	if err != nil {
		panic(err)
	}
	return n
}

// Normalize parses a raw webhook body into a ProviderEvent. A body that is
// not JSON or carries no event id is malformed and rejected; an unmapped
// event type yields an unrecognized event that is stored but drives no
// transition.
func (n *Normalizer) Normalize(raw []byte, receivedAt time.Time) (*model.ProviderEvent, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "webhook payload is not valid JSON")
	}

	eventID := n.searchString(n.eventID, doc)
	if eventID == "" {
		return nil, apperrors.Validation("webhook payload missing event id")
	}

	eventType := n.searchString(n.eventType, doc)
	if eventType == "" {
		eventType = "unknown"
	}

	occurredAt := receivedAt
	if ts := n.searchString(n.occurredAt, doc); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			occurredAt = parsed
		}
	}

	status := model.NormalizeProviderStatus(n.searchString(n.status, doc))
	if status == "" {
		status = model.NormalizeProviderStatus(eventType)
	}

	return &model.ProviderEvent{
		Provider:        ProviderName,
		ExternalEventID: eventID,
		ProviderJobID:   n.searchString(n.faxID, doc),
		Kind:            kindForEventType(eventType),
		ProviderStatus:  status,
		FailureReason:   n.searchString(n.failureReason, doc),
		OccurredAt:      occurredAt,
		ReceivedAt:      receivedAt,
		RawPayload:      json.RawMessage(raw),
	}, nil
}

func (n *Normalizer) searchString(expr jmespath.JMESPath, doc any) string {
	result, err := expr.Search(doc)
	if err != nil {
		return ""
	}
	switch v := result.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// kindForEventType maps Telnyx event types onto the provider-agnostic kinds.
// The "fax." namespace prefix is stripped before matching.
func kindForEventType(eventType string) model.EventKind {
	switch model.NormalizeProviderStatus(eventType) {
	case "queued":
		return model.EventKindQueued
	case "media.processed", "media_processed":
		return model.EventKindMediaProcessed
	case "sending.started", "sending_started", "sending":
		return model.EventKindSendingStarted
	case "delivered":
		return model.EventKindDelivered
	case "failed":
		return model.EventKindFailed
	case "canceled":
		return model.EventKindCanceled
	default:
		return model.EventKindUnrecognized
	}
}
