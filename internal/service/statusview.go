package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/openfax/faxd/internal/core"
	"github.com/openfax/faxd/internal/domain/model"
)

// StatusViewServiceOptions groups dependencies for StatusViewService.
type StatusViewServiceOptions struct {
	Jobs    core.FaxJobRepository
	Uploads core.UploadRepository
	Logger  *slog.Logger
}

// StatusViewService assembles the client-facing job snapshot: the
// authoritative status plus a merged display timeline and a progress
// estimate derived from the furthest stage the provider reported.
type StatusViewService struct {
	jobs    core.FaxJobRepository
	uploads core.UploadRepository
	logger  *slog.Logger
}

// NewStatusViewService constructs a new StatusViewService.
func NewStatusViewService(opts StatusViewServiceOptions) *StatusViewService {
	if opts.Jobs == nil {
		panic("FaxJobRepository is required")
	}
	if opts.Uploads == nil {
		panic("UploadRepository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StatusViewService{
		jobs:    opts.Jobs,
		uploads: opts.Uploads,
		logger:  logger.With("component", "status_view"),
	}
}

// stageInfo is the display mapping for one timeline event kind.
type stageInfo struct {
	Stage   string
	Label   string
	Percent int
}

// Display stages for system-sourced timeline entries keyed by event kind.
var systemStages = map[string]stageInfo{
	"submission_accepted": {Stage: "submitted", Label: "Submitted to fax provider", Percent: 30},
	"submission_rejected": {Stage: "final_failed", Label: "Completed: failed", Percent: 100},
	"cancel_request":      {Stage: "final_canceled", Label: "Completed: canceled", Percent: 100},
}

// Display stages for provider-sourced timeline entries keyed by event kind.
var providerStages = map[string]stageInfo{
	string(model.EventKindQueued):          {Stage: "fax_queued", Label: "Queued by provider", Percent: 45},
	string(model.EventKindMediaProcessed):  {Stage: "fax_media_processed", Label: "Document processed", Percent: 68},
	string(model.EventKindSendingStarted):  {Stage: "fax_sending_started", Label: "Transmission started", Percent: 82},
	string(model.EventKindDelivered):       {Stage: "fax_delivered", Label: "Delivered", Percent: 100},
	string(model.EventKindFailed):          {Stage: "fax_failed", Label: "Transmission failed", Percent: 100},
	string(model.EventKindCanceled):        {Stage: "fax_canceled", Label: "Canceled", Percent: 100},
}

// Default progress per status, used until provider events arrive.
var statusProgress = map[model.FaxJobStatus]stageInfo{
	model.FaxJobStatusCreated:       {Stage: "created", Label: "Preparing transmission", Percent: 15},
	model.FaxJobStatusQueuedForSend: {Stage: "queued_for_send", Label: "Queued for send", Percent: 30},
	model.FaxJobStatusSending:       {Stage: "sending", Label: "Transmission in progress", Percent: 58},
	model.FaxJobStatusDelivered:     {Stage: "delivered", Label: "Fax delivered successfully", Percent: 100},
	model.FaxJobStatusFailed:        {Stage: "failed", Label: "Transmission failed", Percent: 100},
	model.FaxJobStatusCanceled:      {Stage: "canceled", Label: "Fax canceled", Percent: 100},
}

// Build assembles the status response for a job.
func (s *StatusViewService) Build(ctx context.Context, job *model.FaxJob) (*model.FaxJobStatusResponse, error) {
	upload, err := s.uploads.GetByID(ctx, job.DocumentUploadID)
	if err != nil {
		return nil, fmt.Errorf("resolve document upload: %w", err)
	}

	entries, err := s.jobs.Timeline(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("load job timeline: %w", err)
	}

	timeline := s.displayTimeline(job, entries)
	progress := computeProgress(job, entries)

	return &model.FaxJobStatusResponse{
		ID:              job.ID,
		Status:          job.Status,
		ProviderStatus:  job.ProviderStatus,
		DestinationFax:  job.DestinationFax,
		PageCount:       upload.PageCount,
		FailureReason:   job.FailureReason,
		SubmittedAt:     job.SubmittedAt,
		CompletedAt:     job.CompletedAt,
		ProgressPercent: progress.Percent,
		ProgressLabel:   progress.Label,
		ProgressStage:   progress.Stage,
		Timeline:        timeline,
	}, nil
}

// displayTimeline merges the synthetic creation entry, the recorded audit
// entries, and the terminal marker into a display-ready list.
func (s *StatusViewService) displayTimeline(
	job *model.FaxJob,
	entries []*model.TimelineEntry,
) []model.FaxTimelineEvent {
	destination := "Destination " + job.DestinationFax
	timeline := []model.FaxTimelineEvent{{
		At:     job.CreatedAt,
		Stage:  "job_created",
		Label:  "Request created",
		Source: model.TimelineSourceSystem,
		Detail: &destination,
	}}

	for _, entry := range entries {
		info := stageForEntry(entry)
		timeline = append(timeline, model.FaxTimelineEvent{
			At:     entry.OccurredAt,
			Stage:  info.Stage,
			Label:  info.Label,
			Source: entry.Source,
			Detail: entry.Detail,
		})
	}

	if job.Status.Terminal() && job.CompletedAt != nil {
		timeline = append(timeline, model.FaxTimelineEvent{
			At:     *job.CompletedAt,
			Stage:  "final_" + string(job.Status),
			Label:  "Completed: " + string(job.Status),
			Source: model.TimelineSourceSystem,
			Detail: job.FailureReason,
		})
	}

	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].At.Before(timeline[j].At)
	})
	return timeline
}

func stageForEntry(entry *model.TimelineEntry) stageInfo {
	if entry.Source == model.TimelineSourceProvider {
		if info, ok := providerStages[entry.EventKind]; ok {
			return info
		}
		return stageInfo{Stage: "provider_" + entry.EventKind, Label: entry.EventKind}
	}
	if info, ok := systemStages[entry.EventKind]; ok {
		return info
	}
	return stageInfo{Stage: entry.EventKind, Label: entry.EventKind}
}

// computeProgress picks the furthest stage the provider reported; before any
// provider event arrives, the job status supplies a default estimate.
// Progress never moves backward and terminal statuses always read 100.
func computeProgress(job *model.FaxJob, entries []*model.TimelineEntry) stageInfo {
	progress, ok := statusProgress[job.Status]
	if !ok {
		progress = stageInfo{Stage: "processing", Label: "Preparing transmission", Percent: 30}
	}

	if job.Status.Terminal() {
		progress.Percent = 100
		return progress
	}

	for _, entry := range entries {
		if entry.Source != model.TimelineSourceProvider {
			continue
		}
		if info, ok := providerStages[entry.EventKind]; ok && info.Percent > progress.Percent {
			progress = info
		}
	}

	return progress
}
