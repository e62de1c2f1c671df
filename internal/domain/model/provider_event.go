package model

import (
	"encoding/json"
	"strings"
	"time"
)

// EventKind is the provider-agnostic classification of an inbound callback.
type EventKind string

const (
	// EventKindQueued indicates the provider queued the fax. Informational only.
	EventKindQueued EventKind = "queued"
	// EventKindMediaProcessed indicates the document was converted. Informational only.
	EventKindMediaProcessed EventKind = "media_processed"
	// EventKindSendingStarted indicates active transmission began.
	EventKindSendingStarted EventKind = "sending_started"
	// EventKindDelivered indicates the fax was delivered.
	EventKindDelivered EventKind = "delivered"
	// EventKindFailed indicates the transmission failed.
	EventKindFailed EventKind = "failed"
	// EventKindCanceled indicates the provider confirmed a cancellation.
	EventKindCanceled EventKind = "canceled"
	// EventKindUnrecognized is recorded for unmapped provider event types.
	// It never drives a status transition.
	EventKindUnrecognized EventKind = "unrecognized"
)

// Valid returns true if the EventKind is one of the known kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventKindQueued, EventKindMediaProcessed, EventKindSendingStarted,
		EventKindDelivered, EventKindFailed, EventKindCanceled, EventKindUnrecognized:
		return true
	}
	return false
}

// ProviderEvent is a normalized provider callback ready for reconciliation.
type ProviderEvent struct {
	Provider        string
	ExternalEventID string
	ProviderJobID   string
	Kind            EventKind
	ProviderStatus  string
	FailureReason   string
	OccurredAt      time.Time
	ReceivedAt      time.Time
	RawPayload      json.RawMessage
}

// TimelineEntry is a single append-only audit record on a fax job.
// OccurredAt is provider-reported time; RecordedAt is local receipt time.
type TimelineEntry struct {
	ID         string    `json:"id"               db:"id"`
	FaxJobID   string    `json:"fax_job_id"       db:"fax_job_id"`
	EventKind  string    `json:"event_kind"       db:"event_kind"`
	Source     string    `json:"source"           db:"source"`
	Detail     *string   `json:"detail,omitempty" db:"detail"`
	OccurredAt time.Time `json:"occurred_at"      db:"occurred_at"`
	RecordedAt time.Time `json:"recorded_at"      db:"recorded_at"`
}

// Timeline entry sources.
const (
	TimelineSourceSystem   = "system"
	TimelineSourceProvider = "provider"
)

// WebhookEvent is the raw stored copy of a provider callback, keyed by the
// provider's own event id for exact-redelivery deduplication.
type WebhookEvent struct {
	ID              string          `json:"id"                db:"id"`
	Provider        string          `json:"provider"          db:"provider"`
	ExternalEventID string          `json:"external_event_id" db:"external_event_id"`
	EventType       string          `json:"event_type"        db:"event_type"`
	Payload         json.RawMessage `json:"payload"           db:"payload"`
	ReceivedAt      time.Time       `json:"received_at"       db:"received_at"`
}

// NormalizeProviderStatus lowercases and strips a provider status string,
// removing the provider's event namespace prefix when present.
func NormalizeProviderStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if rest, ok := strings.CutPrefix(s, "fax."); ok {
		return rest
	}
	return s
}
