package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/openfax/faxd/internal/errors"

	"github.com/openfax/faxd/internal/domain/model"
)

// UploadRepo provides database operations for document upload metadata.
type UploadRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewUploadRepo creates a new UploadRepo.
func NewUploadRepo(db *sql.DB, cfg RepoConfig) *UploadRepo {
	return &UploadRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
		logger:       cfg.Logger,
	}
}

const uploadColumns = `
  id,
  storage_key,
  mime_type,
  original_filename,
  page_count,
  checksum,
  file_size_bytes,
  created_at,
  deleted_at,
  deleted_reason
`

func scanUpload(row rowScanner) (*model.DocumentUpload, error) {
	var u model.DocumentUpload
	err := row.Scan(
		&u.ID,
		&u.StorageKey,
		&u.MimeType,
		&u.OriginalFilename,
		&u.PageCount,
		&u.Checksum,
		&u.FileSizeBytes,
		&u.CreatedAt,
		&u.DeletedAt,
		&u.DeletedReason,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts metadata for a stored document.
func (r *UploadRepo) Create(ctx context.Context, req model.CreateUploadRequest) (*model.DocumentUpload, error) {
	if req.StorageKey == "" {
		return nil, apperrors.Validation("storage key is required")
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO document_uploads (
			id, storage_key, mime_type, original_filename, page_count, checksum, file_size_bytes, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+uploadColumns,
		uuid.NewString(),
		req.StorageKey,
		req.MimeType,
		req.OriginalFilename,
		req.PageCount,
		req.Checksum,
		req.FileSizeBytes,
		r.timeProvider.Now().UTC(),
	)

	upload, err := scanUpload(row)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("insert upload: %w", err))
	}
	return upload, nil
}

// GetByID fetches upload metadata by id.
func (r *UploadRepo) GetByID(ctx context.Context, id string) (*model.DocumentUpload, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM document_uploads WHERE id = $1`, id)
	upload, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("document upload %s not found", id)
		}
		return nil, apperrors.MapDBError(fmt.Errorf("get upload: %w", err))
	}
	return upload, nil
}

// GetByStorageKey fetches upload metadata by its storage key.
func (r *UploadRepo) GetByStorageKey(ctx context.Context, storageKey string) (*model.DocumentUpload, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM document_uploads WHERE storage_key = $1`, storageKey)
	upload, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("document upload not found")
		}
		return nil, apperrors.MapDBError(fmt.Errorf("get upload by storage key: %w", err))
	}
	return upload, nil
}

// FindDeliveredBefore returns undeleted uploads whose referencing jobs all
// completed as delivered before the cutoff. Retention deletes their bytes.
func (r *UploadRepo) FindDeliveredBefore(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]*model.DocumentUpload, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+uploadColumns+`
		FROM document_uploads u
		WHERE u.deleted_at IS NULL
		  AND EXISTS (
			SELECT 1 FROM fax_jobs j
			WHERE j.document_upload_id = u.id
			  AND j.status = 'delivered'
			  AND j.completed_at IS NOT NULL
			  AND j.completed_at < $1
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM fax_jobs j
			WHERE j.document_upload_id = u.id
			  AND j.status NOT IN ('delivered', 'failed', 'canceled')
		  )
		ORDER BY u.created_at
		LIMIT $2`, cutoff.UTC(), limit)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("find expired uploads: %w", err))
	}
	defer rows.Close()

	var uploads []*model.DocumentUpload
	for rows.Next() {
		u, scanErr := scanUpload(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan upload: %w", scanErr)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// MarkDeleted records that the stored bytes for an upload were removed.
func (r *UploadRepo) MarkDeleted(ctx context.Context, id, reason string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE document_uploads
		SET deleted_at = $2, deleted_reason = $3
		WHERE id = $1 AND deleted_at IS NULL`,
		id, r.timeProvider.Now().UTC(), reason)
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("mark upload deleted: %w", err))
	}
	if n, raErr := res.RowsAffected(); raErr == nil && n == 0 && r.logger != nil {
		r.logger.WarnContext(ctx, "upload already marked deleted", "upload_id", id)
	}
	return nil
}
