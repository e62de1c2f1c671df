package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/openfax/faxd/internal/errors"

	"github.com/openfax/faxd/internal/domain/model"
)

// AnalyticsRepo records fire-and-forget product analytics events.
type AnalyticsRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewAnalyticsRepo creates a new AnalyticsRepo.
func NewAnalyticsRepo(db *sql.DB, cfg RepoConfig) *AnalyticsRepo {
	return &AnalyticsRepo{DB: db, timeProvider: cfg.timeProvider()}
}

// Insert records an analytics event.
func (r *AnalyticsRepo) Insert(ctx context.Context, event *model.AnalyticsEvent) error {
	if event == nil || event.EventName == "" {
		return apperrors.Validation("analytics event name is required")
	}

	metadata := event.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO analytics_events (id, event_name, entity_id, ip_address, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(),
		event.EventName,
		event.EntityID,
		event.IPAddress,
		metadata,
		r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("insert analytics event: %w", err))
	}
	return nil
}

// DeleteOlderThan purges analytics rows created before the cutoff.
func (r *AnalyticsRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM analytics_events WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, apperrors.MapDBError(fmt.Errorf("delete old analytics events: %w", err))
	}
	return res.RowsAffected()
}
