// Package model defines the core data types and structures used throughout the faxd service.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FaxJobStatus represents the current status of an outbound fax job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type FaxJobStatus string

const (
	// FaxJobStatusCreated indicates a job exists locally but has not been submitted yet.
	FaxJobStatusCreated FaxJobStatus = "created"
	// FaxJobStatusQueuedForSend indicates the provider accepted the submission.
	FaxJobStatusQueuedForSend FaxJobStatus = "queued_for_send"
	// FaxJobStatusSending indicates the provider reported active transmission.
	FaxJobStatusSending FaxJobStatus = "sending"
	// FaxJobStatusDelivered indicates the fax reached the destination. Terminal.
	FaxJobStatusDelivered FaxJobStatus = "delivered"
	// FaxJobStatusFailed indicates submission or transmission failed. Terminal.
	FaxJobStatusFailed FaxJobStatus = "failed"
	// FaxJobStatusCanceled indicates the job was canceled before delivery. Terminal.
	FaxJobStatusCanceled FaxJobStatus = "canceled"
)

// UnmarshalText implements encoding.TextUnmarshaler for FaxJobStatus.
func (s *FaxJobStatus) UnmarshalText(text []byte) error {
	v := FaxJobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if v.Valid() {
		*s = v
		return nil
	}
	return fmt.Errorf("invalid FaxJobStatus: %q", string(text))
}

// Valid returns true if the FaxJobStatus is one of the known states.
func (s FaxJobStatus) Valid() bool {
	switch s {
	case FaxJobStatusCreated, FaxJobStatusQueuedForSend, FaxJobStatusSending,
		FaxJobStatusDelivered, FaxJobStatusFailed, FaxJobStatusCanceled:
		return true
	}
	return false
}

// Terminal returns true once a job can no longer change status.
func (s FaxJobStatus) Terminal() bool {
	return s == FaxJobStatusDelivered || s == FaxJobStatusFailed || s == FaxJobStatusCanceled
}

// FaxJob represents an outbound fax job and its provider-facing state.
type FaxJob struct {
	ID                 string       `json:"id"                           db:"id"`
	DocumentUploadID   string       `json:"document_upload_id"           db:"document_upload_id"`
	DestinationFax     string       `json:"destination_fax"              db:"destination_fax"`
	DestinationCountry string       `json:"destination_country"          db:"destination_country"`
	NotificationEmail  *string      `json:"notification_email,omitempty" db:"notification_email"`
	Status             FaxJobStatus `json:"status"                       db:"status"`
	ProviderJobID      *string      `json:"provider_job_id,omitempty"    db:"provider_job_id"`
	ProviderStatus     *string      `json:"provider_status,omitempty"    db:"provider_status"`
	FailureReason      *string      `json:"failure_reason,omitempty"     db:"failure_reason"`
	IPAddress          *string      `json:"-"                            db:"ip_address"`
	SubmittedAt        *time.Time   `json:"submitted_at,omitempty"       db:"submitted_at"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"       db:"completed_at"`
	CreatedAt          time.Time    `json:"created_at"                   db:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"                   db:"updated_at"`
}

// CreateFaxJobRequest represents a request to create a new fax job.
type CreateFaxJobRequest struct {
	DocumentUploadID   string  `json:"document_upload_id"`
	DestinationFax     string  `json:"destination_fax"`
	DestinationCountry string  `json:"destination_country,omitempty"`
	NotificationEmail  *string `json:"notification_email,omitempty"`
}

// Validate validates the CreateFaxJobRequest fields.
func (r *CreateFaxJobRequest) Validate() error {
	if strings.TrimSpace(r.DocumentUploadID) == "" {
		return errors.New("document upload id is required")
	}
	if strings.TrimSpace(r.DestinationFax) == "" {
		return errors.New("destination fax is required")
	}
	return nil
}

// SubmissionOutcome captures the synchronous result of a provider submission call.
// A transport failure is reported as Accepted=false with a descriptive reason.
type SubmissionOutcome struct {
	Accepted       bool
	ProviderJobID  string
	ProviderStatus string
	FailureReason  string
}

// CancelOutcome captures the result of a remote cancel request.
type CancelOutcome struct {
	Acknowledged   bool
	ProviderStatus string
	Reason         string
}
