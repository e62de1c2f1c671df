package model

import "time"

// FaxTimelineEvent is a display-ready timeline entry in the status view.
type FaxTimelineEvent struct {
	At     time.Time `json:"at"`
	Stage  string    `json:"stage"`
	Label  string    `json:"label"`
	Source string    `json:"source"`
	Detail *string   `json:"detail,omitempty"`
}

// FaxJobStatusResponse is the client-facing snapshot of a job, merging the
// authoritative status with a display timeline and progress estimate.
type FaxJobStatusResponse struct {
	ID              string             `json:"id"`
	Status          FaxJobStatus       `json:"status"`
	ProviderStatus  *string            `json:"provider_status,omitempty"`
	DestinationFax  string             `json:"destination_fax"`
	PageCount       int                `json:"page_count"`
	FailureReason   *string            `json:"failure_reason,omitempty"`
	SubmittedAt     *time.Time         `json:"submitted_at,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	ProgressPercent int                `json:"progress_percent"`
	ProgressLabel   string             `json:"progress_label"`
	ProgressStage   string             `json:"progress_stage"`
	Timeline        []FaxTimelineEvent `json:"timeline"`
}

// CreateFaxJobResponse is returned by the create endpoint.
type CreateFaxJobResponse struct {
	FaxJobID string       `json:"fax_job_id"`
	Status   FaxJobStatus `json:"status"`
}

// WebhookAck is the acknowledgement body returned to the provider.
// The webhook endpoint acks normalized-but-ignored deliveries with 2xx to
// avoid provider retry storms.
type WebhookAck struct {
	OK        bool   `json:"ok"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
	Message   string `json:"message,omitempty"`
}
