// Package data provides the PostgreSQL persistence layer for the faxd service.
package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/openfax/faxd/internal/errors"

	"github.com/openfax/faxd/internal/core"
	"github.com/openfax/faxd/internal/data/pgxutil"
	"github.com/openfax/faxd/internal/domain/model"
)

// RepoConfig holds shared configuration for repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

func (c RepoConfig) timeProvider() TimeProvider {
	if c.TimeProvider != nil {
		return c.TimeProvider
	}
	return &RealTimeProvider{}
}

// FaxJobRepo provides database operations for fax jobs and their timeline.
// All status mutations go through Mutate/MutateByProviderJobID, which lock the
// job row for the duration of the load-decide-persist sequence.
type FaxJobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewFaxJobRepo creates a new FaxJobRepo with the given database connection.
func NewFaxJobRepo(db *sql.DB, cfg RepoConfig) *FaxJobRepo {
	return &FaxJobRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
		logger:       cfg.Logger,
	}
}

const faxJobColumns = `
  id,
  document_upload_id,
  destination_fax,
  destination_country,
  notification_email,
  status,
  provider_job_id,
  provider_status,
  failure_reason,
  ip_address,
  submitted_at,
  completed_at,
  created_at,
  updated_at
`

// rowScanner abstracts pgx.Row and *sql.Row for the shared scan helper.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFaxJob(row rowScanner) (*model.FaxJob, error) {
	var job model.FaxJob
	err := row.Scan(
		&job.ID,
		&job.DocumentUploadID,
		&job.DestinationFax,
		&job.DestinationCountry,
		&job.NotificationEmail,
		&job.Status,
		&job.ProviderJobID,
		&job.ProviderStatus,
		&job.FailureReason,
		&job.IPAddress,
		&job.SubmittedAt,
		&job.CompletedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Create inserts a new fax job in the `created` status.
func (r *FaxJobRepo) Create(ctx context.Context, params core.CreateFaxJobParams) (*model.FaxJob, error) {
	if strings.TrimSpace(params.DocumentUploadID) == "" {
		return nil, apperrors.Validation("document upload id is required")
	}
	if strings.TrimSpace(params.DestinationFax) == "" {
		return nil, apperrors.Validation("destination fax is required")
	}

	country := strings.ToUpper(strings.TrimSpace(params.DestinationCountry))
	if country == "" {
		country = "US"
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO fax_jobs (
			id, document_upload_id, destination_fax, destination_country,
			notification_email, status, ip_address, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING `+faxJobColumns,
		uuid.NewString(),
		params.DocumentUploadID,
		params.DestinationFax,
		country,
		params.NotificationEmail,
		model.FaxJobStatusCreated,
		params.IPAddress,
		now,
	)

	job, err := scanFaxJob(row)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("insert fax job: %w", err))
	}
	return job, nil
}

// GetByID fetches a fax job snapshot by id.
func (r *FaxJobRepo) GetByID(ctx context.Context, id string) (*model.FaxJob, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+faxJobColumns+` FROM fax_jobs WHERE id = $1`, id)

	job, err := scanFaxJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("fax job %s not found", id)
		}
		return nil, apperrors.MapDBError(fmt.Errorf("get fax job: %w", err))
	}
	return job, nil
}

// Mutate runs fn against the row-locked job identified by id and persists the
// returned transition atomically with any timeline appends.
func (r *FaxJobRepo) Mutate(ctx context.Context, id string, fn core.MutateFunc) (*model.FaxJob, error) {
	return r.mutate(ctx, `SELECT `+faxJobColumns+` FROM fax_jobs WHERE id = $1 FOR UPDATE`, id, fn)
}

// MutateByProviderJobID is Mutate keyed by the provider's job id; the webhook
// reconciliation path uses it because callbacks carry only the provider id.
func (r *FaxJobRepo) MutateByProviderJobID(
	ctx context.Context,
	providerJobID string,
	fn core.MutateFunc,
) (*model.FaxJob, error) {
	return r.mutate(ctx,
		`SELECT `+faxJobColumns+` FROM fax_jobs WHERE provider_job_id = $1 FOR UPDATE`,
		providerJobID, fn)
}

func (r *FaxJobRepo) mutate(ctx context.Context, lockQuery, key string, fn core.MutateFunc) (*model.FaxJob, error) {
	var result *model.FaxJob

	txErr := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		job, err := scanFaxJob(tx.QueryRow(ctx, lockQuery, key))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NotFoundf("fax job for key %s not found", key)
			}
			return fmt.Errorf("lock fax job: %w", err)
		}

		transition, err := fn(job)
		if err != nil {
			return err
		}
		if transition == nil {
			result = job
			return nil
		}

		updated, err := r.applyTransition(ctx, tx, job, transition)
		if err != nil {
			return err
		}
		if err := r.appendTimeline(ctx, tx, job.ID, transition.Timeline); err != nil {
			return err
		}

		result = updated
		return nil
	})
	if txErr != nil {
		return nil, apperrors.MapDBError(txErr)
	}
	return result, nil
}

// applyTransition persists the field changes of a transition. Status is only
// written when the transition advances it; provider_job_id is write-once.
func (r *FaxJobRepo) applyTransition(
	ctx context.Context,
	tx pgx.Tx,
	job *model.FaxJob,
	t *core.Transition,
) (*model.FaxJob, error) {
	now := r.timeProvider.Now().UTC()
	sets := []string{"updated_at = $2"}
	args := []any{job.ID, now}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if t.Next != "" && t.Next != job.Status {
		sets = append(sets, "status = "+arg(t.Next))
	}
	if t.SetProviderJobID != nil {
		// write-once: never overwrite an existing provider job id
		sets = append(sets, "provider_job_id = COALESCE(provider_job_id, "+arg(*t.SetProviderJobID)+")")
	}
	if t.SetProviderStatus != nil {
		sets = append(sets, "provider_status = "+arg(*t.SetProviderStatus))
	}
	if t.SetFailureReason != nil {
		sets = append(sets, "failure_reason = "+arg(*t.SetFailureReason))
	}
	if t.MarkSubmitted {
		sets = append(sets, "submitted_at = COALESCE(submitted_at, "+arg(now)+")")
	}
	if t.MarkCompleted {
		sets = append(sets, "completed_at = COALESCE(completed_at, "+arg(now)+")")
	}

	if len(sets) == 1 && len(t.Timeline) > 0 {
		// timeline-only append, leave the row untouched
		return job, nil
	}

	query := `UPDATE fax_jobs SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING ` + faxJobColumns

	updated, err := scanFaxJob(tx.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("update fax job: %w", err)
	}

	if r.logger != nil && updated.Status != job.Status {
		r.logger.InfoContext(ctx, "fax job status changed",
			"fax_job_id", job.ID,
			"from", job.Status,
			"to", updated.Status,
		)
	}
	return updated, nil
}

func (r *FaxJobRepo) appendTimeline(
	ctx context.Context,
	tx pgx.Tx,
	jobID string,
	entries []core.TimelineAppend,
) error {
	now := r.timeProvider.Now().UTC()
	for _, e := range entries {
		occurredAt := e.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = now
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO fax_job_timeline (id, fax_job_id, event_kind, source, detail, occurred_at, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.NewString(), jobID, e.EventKind, e.Source, e.Detail, occurredAt.UTC(), now,
		)
		if err != nil {
			return fmt.Errorf("append timeline entry %s: %w", e.EventKind, err)
		}
	}
	return nil
}

// Timeline returns the full append-only timeline for a job in receipt order.
func (r *FaxJobRepo) Timeline(ctx context.Context, jobID string) ([]*model.TimelineEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, fax_job_id, event_kind, source, detail, occurred_at, recorded_at
		FROM fax_job_timeline
		WHERE fax_job_id = $1
		ORDER BY recorded_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list timeline: %w", err))
	}
	defer rows.Close()

	var entries []*model.TimelineEntry
	for rows.Next() {
		var e model.TimelineEntry
		if scanErr := rows.Scan(
			&e.ID, &e.FaxJobID, &e.EventKind, &e.Source, &e.Detail, &e.OccurredAt, &e.RecordedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", scanErr)
		}
		entries = append(entries, &e)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate timeline: %w", rowsErr)
	}
	return entries, nil
}

// CountByStatus returns job counts per status, used by the health/stats surface.
func (r *FaxJobRepo) CountByStatus(ctx context.Context) (map[model.FaxJobStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM fax_jobs GROUP BY status`)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("count jobs by status: %w", err))
	}
	defer rows.Close()

	counts := make(map[model.FaxJobStatus]int)
	for rows.Next() {
		var status model.FaxJobStatus
		var n int
		if scanErr := rows.Scan(&status, &n); scanErr != nil {
			return nil, fmt.Errorf("scan status count: %w", scanErr)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
