package model

import "time"

// DocumentUpload represents a stored document that fax jobs reference.
type DocumentUpload struct {
	ID               string     `json:"id"                       db:"id"`
	StorageKey       string     `json:"storage_key"              db:"storage_key"`
	MimeType         string     `json:"mime_type"                db:"mime_type"`
	OriginalFilename string     `json:"original_filename"        db:"original_filename"`
	PageCount        int        `json:"page_count"               db:"page_count"`
	Checksum         string     `json:"checksum"                 db:"checksum"`
	FileSizeBytes    int64      `json:"file_size_bytes"          db:"file_size_bytes"`
	CreatedAt        time.Time  `json:"created_at"               db:"created_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"     db:"deleted_at"`
	DeletedReason    *string    `json:"deleted_reason,omitempty" db:"deleted_reason"`
}

// Deleted returns true once the stored bytes have been removed.
func (u *DocumentUpload) Deleted() bool {
	return u.DeletedAt != nil
}

// CreateUploadRequest groups the metadata persisted for a stored document.
type CreateUploadRequest struct {
	StorageKey       string
	MimeType         string
	OriginalFilename string
	PageCount        int
	Checksum         string
	FileSizeBytes    int64
}

// UploadResponse is returned by the upload endpoint.
type UploadResponse struct {
	DocumentUploadID string `json:"document_upload_id"`
	MimeType         string `json:"mime_type"`
	PageCount        int    `json:"page_count"`
	Checksum         string `json:"checksum"`
	FileSizeBytes    int64  `json:"file_size_bytes"`
}

// AnalyticsEvent is a fire-and-forget product analytics record.
type AnalyticsEvent struct {
	ID        string    `json:"id"                  db:"id"`
	EventName string    `json:"event_name"          db:"event_name"`
	EntityID  *string   `json:"entity_id,omitempty" db:"entity_id"`
	IPAddress *string   `json:"-"                   db:"ip_address"`
	Metadata  []byte    `json:"metadata,omitempty"  db:"metadata"`
	CreatedAt time.Time `json:"created_at"          db:"created_at"`
}
