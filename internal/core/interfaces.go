// Package core defines the port interfaces between the service layer and its
// collaborators (storage, provider, verification). Services depend on these
// interfaces, never on concrete implementations.
package core

import (
	"context"
	"time"

	"github.com/openfax/faxd/internal/domain/model"
)

// TimelineAppend describes one audit entry to append alongside a mutation.
type TimelineAppend struct {
	EventKind  string
	Source     string
	Detail     *string
	OccurredAt time.Time
}

// Transition describes the mutation a MutateFunc wants persisted. A zero Next
// leaves the status untouched (timeline-only append for recorded no-ops).
type Transition struct {
	Next              model.FaxJobStatus
	SetProviderJobID  *string
	SetProviderStatus *string
	SetFailureReason  *string
	MarkSubmitted     bool
	MarkCompleted     bool
	Timeline          []TimelineAppend
}

// MutateFunc decides, given the row-locked current job, what to persist.
// Returning (nil, nil) persists nothing. Returning an error aborts the
// transaction and surfaces the error unchanged.
type MutateFunc func(current *model.FaxJob) (*Transition, error)

// FaxJobRepository defines the interface for fax job data operations.
// Mutate and MutateByProviderJobID run the load-decide-persist sequence as a
// single transaction with the job row locked, so concurrent mutations of the
// same job serialize at the storage layer across process instances.
type FaxJobRepository interface {
	Create(ctx context.Context, params CreateFaxJobParams) (*model.FaxJob, error)
	GetByID(ctx context.Context, id string) (*model.FaxJob, error)
	Mutate(ctx context.Context, id string, fn MutateFunc) (*model.FaxJob, error)
	MutateByProviderJobID(ctx context.Context, providerJobID string, fn MutateFunc) (*model.FaxJob, error)
	Timeline(ctx context.Context, jobID string) ([]*model.TimelineEntry, error)
}

// CreateFaxJobParams groups parameters for inserting a new fax job.
type CreateFaxJobParams struct {
	DocumentUploadID   string
	DestinationFax     string
	DestinationCountry string
	NotificationEmail  *string
	IPAddress          *string
}

// WebhookEventRepository stores raw provider callbacks for audit and
// deduplicates exact redeliveries via the (provider, external_event_id) key.
type WebhookEventRepository interface {
	// Insert records the event and reports whether this is the first time the
	// provider delivered it. A redelivery returns (false, nil).
	Insert(ctx context.Context, event *model.WebhookEvent) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// UploadRepository defines the interface for document upload metadata.
type UploadRepository interface {
	Create(ctx context.Context, req model.CreateUploadRequest) (*model.DocumentUpload, error)
	GetByID(ctx context.Context, id string) (*model.DocumentUpload, error)
	GetByStorageKey(ctx context.Context, storageKey string) (*model.DocumentUpload, error)
	// FindDeliveredBefore returns up to limit undeleted uploads whose jobs all
	// delivered before the cutoff; retention removes their stored bytes.
	FindDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.DocumentUpload, error)
	MarkDeleted(ctx context.Context, id, reason string) error
}

// AnalyticsRepository records fire-and-forget product analytics events.
type AnalyticsRepository interface {
	Insert(ctx context.Context, event *model.AnalyticsEvent) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SubmitFaxParams groups parameters for a provider submission call.
type SubmitFaxParams struct {
	DestinationFax string
	MediaURL       string
}

// FaxProvider is the outbound provider collaborator. Both calls carry bounded
// timeouts and are never retried by the reconciliation engine.
type FaxProvider interface {
	Submit(ctx context.Context, params SubmitFaxParams) (*model.SubmissionOutcome, error)
	RequestCancel(ctx context.Context, providerJobID string) (*model.CancelOutcome, error)
}

// WebhookVerifier authenticates inbound provider callbacks.
type WebhookVerifier interface {
	// Enabled reports whether verification is configured; when false, Verify
	// is skipped entirely.
	Enabled() bool
	Verify(payload []byte, timestampHeader, signatureHeader string) error
}

// EventNormalizer parses a raw provider callback into a typed event.
type EventNormalizer interface {
	Normalize(raw []byte, receivedAt time.Time) (*model.ProviderEvent, error)
}

// StorageBackend persists and serves uploaded document bytes.
type StorageBackend interface {
	Store(ctx context.Context, storageKey string, content []byte) error
	Exists(ctx context.Context, storageKey string) bool
	Read(ctx context.Context, storageKey string) ([]byte, error)
	Delete(ctx context.Context, storageKey string) (bool, error)
	// PublicURL returns a time-limited URL the provider can fetch the
	// document from.
	PublicURL(storageKey string, ttl time.Duration) string
}

// RateLimiter enforces request quotas shared across process instances.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
