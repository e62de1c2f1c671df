package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/openfax/faxd/internal/errors"

	"github.com/openfax/faxd/internal/domain/model"
)

// WebhookEventRepo stores raw provider callbacks. The unique
// (provider, external_event_id) constraint deduplicates exact redeliveries.
type WebhookEventRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(db *sql.DB, cfg RepoConfig) *WebhookEventRepo {
	return &WebhookEventRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
		logger:       cfg.Logger,
	}
}

// Insert records the raw event. The first delivery returns (true, nil); an
// exact redelivery of the same provider event returns (false, nil) so the
// caller can acknowledge without reprocessing.
func (r *WebhookEventRepo) Insert(ctx context.Context, event *model.WebhookEvent) (bool, error) {
	if event == nil {
		return false, apperrors.Validation("webhook event is required")
	}

	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = r.timeProvider.Now()
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO webhook_events (id, provider, external_event_id, event_type, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(),
		event.Provider,
		event.ExternalEventID,
		event.EventType,
		[]byte(event.Payload),
		receivedAt.UTC(),
	)
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			if r.logger != nil {
				r.logger.DebugContext(ctx, "duplicate webhook event ignored",
					"provider", event.Provider,
					"external_event_id", event.ExternalEventID,
				)
			}
			return false, nil
		}
		return false, apperrors.MapDBError(fmt.Errorf("insert webhook event: %w", err))
	}
	return true, nil
}

// DeleteOlderThan purges stored callbacks received before the cutoff.
func (r *WebhookEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM webhook_events WHERE received_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, apperrors.MapDBError(fmt.Errorf("delete old webhook events: %w", err))
	}
	return res.RowsAffected()
}
