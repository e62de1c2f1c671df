package notify

import (
	"context"
	"time"
)

// Terminal outcomes we notify senders about.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
)

// FaxCompletionPayload captures the canonical data we emit when a fax job
// reaches a terminal status and the sender asked to be notified.
type FaxCompletionPayload struct {
	JobID          string
	ToEmail        string
	DestinationFax string
	Outcome        string
	FailureReason  string
	PageCount      int
	CompletedAt    time.Time
}

// Sink describes a destination capable of consuming fax completion notifications.
type Sink interface {
	SendFaxCompletion(ctx context.Context, payload FaxCompletionPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload FaxCompletionPayload) error

// SendFaxCompletion implements the Sink interface.
func (f SinkFunc) SendFaxCompletion(ctx context.Context, payload FaxCompletionPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
