package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openfax/faxd/internal/core"
	"github.com/openfax/faxd/internal/domain/fax"
	"github.com/openfax/faxd/internal/domain/model"
	apperrors "github.com/openfax/faxd/internal/errors"
	"github.com/openfax/faxd/internal/observability/metrics"
	"github.com/openfax/faxd/internal/observability/notify"
	"github.com/openfax/faxd/internal/observability/statsd"
)

// ReconcileObservers groups the optional side-channel collaborators of the
// reconciliation engine. All of them are best-effort: a failing metric or
// notification never fails the mutation it observed.
type ReconcileObservers struct {
	Logger   *slog.Logger
	Metrics  statsd.Sink
	Notifier notify.Sink
	// Uploads resolves page counts for completion notifications.
	Uploads core.UploadRepository
}

// ReconcileServiceOptions groups dependencies for ReconcileService.
type ReconcileServiceOptions struct {
	Jobs      core.FaxJobRepository
	Webhooks  core.WebhookEventRepository
	Observers ReconcileObservers
}

// ReconcileService folds submission outcomes, provider events, and client
// cancel requests into fax job state. Every status change goes through the
// status machine inside a row-locked repository mutation, so concurrent
// events for the same job serialize and apply in receipt order.
type ReconcileService struct {
	jobs     core.FaxJobRepository
	webhooks core.WebhookEventRepository
	logger   *slog.Logger
	metrics  statsd.Sink
	notifier notify.Sink
	uploads  core.UploadRepository
}

// NewReconcileService constructs a new ReconcileService.
func NewReconcileService(opts ReconcileServiceOptions) *ReconcileService {
	if opts.Jobs == nil {
		panic("FaxJobRepository is required")
	}
	if opts.Webhooks == nil {
		panic("WebhookEventRepository is required")
	}

	logger := opts.Observers.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ReconcileService{
		jobs:     opts.Jobs,
		webhooks: opts.Webhooks,
		logger:   logger.With("component", "reconcile"),
		metrics:  opts.Observers.Metrics,
		notifier: opts.Observers.Notifier,
		uploads:  opts.Observers.Uploads,
	}
}

// ApplySubmissionOutcome records the synchronous result of the provider
// submission call. An accepted outcome moves the job to queued_for_send and
// pins the provider job id; a rejected outcome fails the job. If the job
// already reached a terminal status (a racing cancel), the outcome is
// recorded in the timeline without changing status.
func (s *ReconcileService) ApplySubmissionOutcome(
	ctx context.Context,
	jobID string,
	outcome model.SubmissionOutcome,
) (*model.FaxJob, error) {
	trigger := fax.TriggerSubmissionAccepted
	if !outcome.Accepted {
		trigger = fax.TriggerSubmissionRejected
	}

	started := time.Now()
	var from model.FaxJobStatus

	job, err := s.jobs.Mutate(ctx, jobID, func(current *model.FaxJob) (*core.Transition, error) {
		from = current.Status
		decision := fax.Decide(current.Status, trigger)

		switch decision.Outcome {
		case fax.OutcomeAdvance:
			return s.submissionTransition(decision, outcome), nil

		case fax.OutcomeNoOp:
			detail := "submission outcome after terminal status: " + decision.Reason
			return &core.Transition{
				Timeline: []core.TimelineAppend{{
					EventKind: string(trigger),
					Source:    model.TimelineSourceSystem,
					Detail:    &detail,
				}},
			}, nil

		default:
			return nil, apperrors.InvalidStatef(
				"submission outcome not allowed in status %q: %s", current.Status, decision.Reason)
		}
	})

	s.emitTransition(trigger, from, job, started, err)
	if err != nil {
		return nil, fmt.Errorf("apply submission outcome: %w", err)
	}

	s.notifyIfTerminal(ctx, job)
	return job, nil
}

// ApplyProviderEvent folds one normalized provider callback into job state.
// The raw event is stored first; an exact redelivery is acknowledged as a
// duplicate without touching the job. Events that carry no fax id, or
// reference a job this instance never created, are acknowledged as ignored
// so the provider does not retry them forever.
func (s *ReconcileService) ApplyProviderEvent(
	ctx context.Context,
	event *model.ProviderEvent,
) (*model.WebhookAck, error) {
	firstSeen, err := s.webhooks.Insert(ctx, &model.WebhookEvent{
		ID:              uuid.NewString(),
		Provider:        event.Provider,
		ExternalEventID: event.ExternalEventID,
		EventType:       string(event.Kind),
		Payload:         event.RawPayload,
		ReceivedAt:      event.ReceivedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("store webhook event: %w", err)
	}
	if !firstSeen {
		s.emitWebhook(event, metrics.ResultDuplicate)
		return &model.WebhookAck{OK: true, Duplicate: true, Message: "duplicate event ignored"}, nil
	}

	if event.ProviderJobID == "" {
		s.emitWebhook(event, metrics.ResultNoop)
		return &model.WebhookAck{OK: true, Ignored: true, Message: "no fax id in event"}, nil
	}

	trigger := fax.TriggerForEvent(event.Kind)
	started := time.Now()
	var from model.FaxJobStatus

	job, err := s.jobs.MutateByProviderJobID(ctx, event.ProviderJobID,
		func(current *model.FaxJob) (*core.Transition, error) {
			from = current.Status
			return s.eventTransition(current, event, trigger), nil
		})
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.logger.WarnContext(ctx, "event references unknown provider job",
				"provider", event.Provider, "provider_job_id", event.ProviderJobID)
			s.emitWebhook(event, metrics.ResultNoop)
			return &model.WebhookAck{OK: true, Ignored: true, Message: "unknown provider job id"}, nil
		}
		s.emitWebhook(event, metrics.ResultError)
		return nil, fmt.Errorf("apply provider event: %w", err)
	}

	s.emitTransition(trigger, from, job, started, nil)
	s.emitWebhook(event, metrics.ResultSuccess)
	s.notifyIfTerminal(ctx, job)
	return &model.WebhookAck{OK: true}, nil
}

// ApplyCancelRequest processes a client cancel. Jobs that have not entered
// active transmission cancel locally; a job mid-transmission conflicts; a
// terminal job conflicts because there is nothing left to cancel.
func (s *ReconcileService) ApplyCancelRequest(ctx context.Context, jobID string) (*model.FaxJob, error) {
	started := time.Now()
	var from model.FaxJobStatus

	job, err := s.jobs.Mutate(ctx, jobID, func(current *model.FaxJob) (*core.Transition, error) {
		from = current.Status
		decision := fax.Decide(current.Status, fax.TriggerCancelRequest)

		switch decision.Outcome {
		case fax.OutcomeAdvance:
			reason := "Canceled by user"
			detail := reason
			return &core.Transition{
				Next:             decision.Next,
				SetFailureReason: &reason,
				MarkCompleted:    true,
				Timeline: []core.TimelineAppend{{
					EventKind: string(fax.TriggerCancelRequest),
					Source:    model.TimelineSourceSystem,
					Detail:    &detail,
				}},
			}, nil

		case fax.OutcomeNoOp:
			return nil, apperrors.Conflictf("cannot cancel in status %q", current.Status)

		default:
			return nil, apperrors.Conflict(decision.Reason)
		}
	})

	s.emitTransition(fax.TriggerCancelRequest, from, job, started, err)
	if err != nil {
		if apperrors.GetCode(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("apply cancel request: %w", err)
	}

	s.notifyIfTerminal(ctx, job)
	return job, nil
}

func (s *ReconcileService) submissionTransition(
	decision fax.Decision,
	outcome model.SubmissionOutcome,
) *core.Transition {
	t := &core.Transition{Next: decision.Next, MarkSubmitted: true}

	if outcome.Accepted {
		if outcome.ProviderJobID != "" {
			t.SetProviderJobID = &outcome.ProviderJobID
		}
		if outcome.ProviderStatus != "" {
			t.SetProviderStatus = &outcome.ProviderStatus
		}
		detail := "provider accepted: " + outcome.ProviderJobID
		t.Timeline = []core.TimelineAppend{{
			EventKind: string(fax.TriggerSubmissionAccepted),
			Source:    model.TimelineSourceSystem,
			Detail:    &detail,
		}}
		return t
	}

	reason := outcome.FailureReason
	if reason == "" {
		reason = "provider rejected the submission"
	}
	t.SetFailureReason = &reason
	t.MarkCompleted = true
	t.Timeline = []core.TimelineAppend{{
		EventKind: string(fax.TriggerSubmissionRejected),
		Source:    model.TimelineSourceSystem,
		Detail:    &reason,
	}}
	return t
}

// eventTransition builds the persisted delta for a provider event. Every
// event lands in the timeline, including no-ops on terminal jobs; only
// forward decisions touch status.
func (s *ReconcileService) eventTransition(
	current *model.FaxJob,
	event *model.ProviderEvent,
	trigger fax.Trigger,
) *core.Transition {
	decision := fax.Decide(current.Status, trigger)

	detail := event.ProviderStatus
	if event.FailureReason != "" {
		detail = event.FailureReason
	}
	entry := core.TimelineAppend{
		EventKind:  string(event.Kind),
		Source:     model.TimelineSourceProvider,
		OccurredAt: event.OccurredAt,
	}
	if detail != "" {
		entry.Detail = &detail
	}

	t := &core.Transition{Timeline: []core.TimelineAppend{entry}}

	if decision.Outcome != fax.OutcomeAdvance {
		return t
	}

	t.Next = decision.Next
	if event.ProviderStatus != "" {
		t.SetProviderStatus = &event.ProviderStatus
	}
	if decision.Next.Terminal() {
		t.MarkCompleted = true
		switch decision.Next {
		case model.FaxJobStatusFailed:
			reason := event.FailureReason
			if reason == "" {
				reason = "Fax transmission failed"
			}
			t.SetFailureReason = &reason
		case model.FaxJobStatusCanceled:
			reason := "Canceled by user"
			t.SetFailureReason = &reason
		}
	}
	return t
}

// notifyIfTerminal emails the sender once a job reaches a terminal status.
// Failures are logged and dropped; notification is never load-bearing.
func (s *ReconcileService) notifyIfTerminal(ctx context.Context, job *model.FaxJob) {
	if s.notifier == nil || job == nil || !job.Status.Terminal() {
		return
	}
	if job.NotificationEmail == nil || *job.NotificationEmail == "" {
		return
	}

	payload := notify.FaxCompletionPayload{
		JobID:          job.ID,
		ToEmail:        *job.NotificationEmail,
		DestinationFax: job.DestinationFax,
		Outcome:        string(job.Status),
	}
	if job.FailureReason != nil {
		payload.FailureReason = *job.FailureReason
	}
	if job.CompletedAt != nil {
		payload.CompletedAt = *job.CompletedAt
	}
	if s.uploads != nil {
		if upload, err := s.uploads.GetByID(ctx, job.DocumentUploadID); err == nil {
			payload.PageCount = upload.PageCount
		}
	}

	if err := s.notifier.SendFaxCompletion(ctx, payload); err != nil {
		s.logger.WarnContext(ctx, "completion notification failed",
			"fax_job_id", job.ID, "err", err)
	}
}

func (s *ReconcileService) emitTransition(
	trigger fax.Trigger,
	from model.FaxJobStatus,
	job *model.FaxJob,
	started time.Time,
	err error,
) {
	if s.metrics == nil {
		return
	}

	in := metrics.TransitionMetric{
		From:     string(from),
		Trigger:  string(trigger),
		Duration: time.Since(started),
	}
	switch {
	case err != nil:
		in.Result = metrics.ResultError
		in.Err = err
		if apperrors.IsConflict(err) || apperrors.IsInvalidState(err) {
			in.Result = metrics.ResultConflict
		}
	case job != nil && job.Status != from:
		in.Result = metrics.ResultSuccess
		in.To = string(job.Status)
	default:
		in.Result = metrics.ResultNoop
		in.To = string(from)
	}
	metrics.EmitTransition(s.metrics, in)
}

func (s *ReconcileService) emitWebhook(event *model.ProviderEvent, result string) {
	if s.metrics == nil {
		return
	}
	metrics.EmitWebhook(s.metrics, metrics.WebhookMetric{
		Provider:  event.Provider,
		EventKind: string(event.Kind),
		Result:    result,
	})
}
