package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openfax/faxd/internal/core"
	"github.com/openfax/faxd/internal/domain/model"
	apperrors "github.com/openfax/faxd/internal/errors"
	"github.com/openfax/faxd/internal/observability/metrics"
	"github.com/openfax/faxd/internal/observability/statsd"
	"github.com/openfax/faxd/internal/util"
)

// FaxJobServiceConfig groups tuning knobs for job orchestration.
type FaxJobServiceConfig struct {
	// MediaURLTTL bounds how long the provider can fetch the document.
	MediaURLTTL time.Duration
	// SupportedCountries is the set of accepted destination country codes.
	SupportedCountries []string
	// ProviderCallTimeout bounds each outbound provider call.
	ProviderCallTimeout time.Duration
}

// FaxJobServiceOptions groups dependencies for FaxJobService.
type FaxJobServiceOptions struct {
	Jobs      core.FaxJobRepository
	Uploads   core.UploadRepository
	Reconcile *ReconcileService
	Provider  core.FaxProvider
	Storage   core.StorageBackend
	Analytics core.AnalyticsRepository
	Config    FaxJobServiceConfig
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// FaxJobService orchestrates the life of an outbound fax job: create and
// submit, read, and cancel. It performs provider calls itself but delegates
// every status change to the reconciliation engine.
type FaxJobService struct {
	jobs      core.FaxJobRepository
	uploads   core.UploadRepository
	reconcile *ReconcileService
	provider  core.FaxProvider
	storage   core.StorageBackend
	analytics core.AnalyticsRepository
	config    FaxJobServiceConfig
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewFaxJobService constructs a new FaxJobService.
func NewFaxJobService(opts FaxJobServiceOptions) *FaxJobService {
	if opts.Jobs == nil {
		panic("FaxJobRepository is required")
	}
	if opts.Uploads == nil {
		panic("UploadRepository is required")
	}
	if opts.Reconcile == nil {
		panic("ReconcileService is required")
	}
	if opts.Provider == nil {
		panic("FaxProvider is required")
	}
	if opts.Storage == nil {
		panic("StorageBackend is required")
	}

	cfg := opts.Config
	if cfg.MediaURLTTL <= 0 {
		cfg.MediaURLTTL = time.Hour
	}
	if len(cfg.SupportedCountries) == 0 {
		cfg.SupportedCountries = []string{"US"}
	}
	if cfg.ProviderCallTimeout <= 0 {
		cfg.ProviderCallTimeout = 20 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &FaxJobService{
		jobs:      opts.Jobs,
		uploads:   opts.Uploads,
		reconcile: opts.Reconcile,
		provider:  opts.Provider,
		storage:   opts.Storage,
		analytics: opts.Analytics,
		config:    cfg,
		logger:    logger.With("component", "fax_job_service"),
		metrics:   opts.Metrics,
	}
}

// Create validates the request, persists the job, submits it to the provider,
// and reconciles the submission outcome. The returned job reflects the
// outcome: queued_for_send on acceptance, failed on rejection.
func (s *FaxJobService) Create(
	ctx context.Context,
	req model.CreateFaxJobRequest,
	clientIP string,
) (*model.FaxJob, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid fax job request")
	}

	country := strings.ToUpper(strings.TrimSpace(req.DestinationCountry))
	if country == "" {
		country = "US"
	}
	if !s.countrySupported(country) {
		return nil, apperrors.ValidationField("destination_country",
			fmt.Sprintf("destination country %s is not supported", country))
	}

	destination, err := util.NormalizeUSFaxNumber(req.DestinationFax)
	if err != nil {
		return nil, err
	}

	upload, err := s.uploads.GetByID(ctx, req.DocumentUploadID)
	if err != nil {
		return nil, fmt.Errorf("resolve document upload: %w", err)
	}
	if upload.Deleted() {
		return nil, apperrors.NotFound("document upload not found")
	}

	var notificationEmail *string
	if req.NotificationEmail != nil && strings.TrimSpace(*req.NotificationEmail) != "" {
		lowered := strings.ToLower(strings.TrimSpace(*req.NotificationEmail))
		notificationEmail = &lowered
	}

	var ip *string
	if clientIP != "" {
		ip = &clientIP
	}

	job, err := s.jobs.Create(ctx, core.CreateFaxJobParams{
		DocumentUploadID:   upload.ID,
		DestinationFax:     destination,
		DestinationCountry: country,
		NotificationEmail:  notificationEmail,
		IPAddress:          ip,
	})
	if err != nil {
		return nil, fmt.Errorf("create fax job: %w", err)
	}

	s.logger.InfoContext(ctx, "fax job created",
		"fax_job_id", job.ID, "destination", destination)
	s.track(ctx, "job_created", job.ID, ip, map[string]string{"country": country})

	return s.submit(ctx, job, upload)
}

// Get returns the fax job by id.
func (s *FaxJobService) Get(ctx context.Context, id string) (*model.FaxJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get fax job: %w", err)
	}
	return job, nil
}

// Cancel cancels a job that has not entered active transmission. When the
// provider already knows about the job, a remote cancel is requested
// best-effort after the local transition lands.
func (s *FaxJobService) Cancel(ctx context.Context, id string) (*model.FaxJob, error) {
	job, err := s.reconcile.ApplyCancelRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.ProviderJobID != nil && *job.ProviderJobID != "" {
		s.requestRemoteCancel(ctx, job)
	}

	s.track(ctx, "job_canceled", job.ID, job.IPAddress, nil)
	return job, nil
}

// submit dispatches the created job to the provider and folds the outcome
// back into job state. A provider transport failure becomes a rejected
// submission, not an error to the caller.
func (s *FaxJobService) submit(
	ctx context.Context,
	job *model.FaxJob,
	upload *model.DocumentUpload,
) (*model.FaxJob, error) {
	if !s.storage.Exists(ctx, upload.StorageKey) {
		rejected, err := s.reconcile.ApplySubmissionOutcome(ctx, job.ID, model.SubmissionOutcome{
			Accepted:      false,
			FailureReason: "document file missing from storage",
		})
		if err != nil {
			return nil, err
		}
		return rejected, nil
	}

	mediaURL := s.storage.PublicURL(upload.StorageKey, s.config.MediaURLTTL)

	callCtx, cancel := context.WithTimeout(ctx, s.config.ProviderCallTimeout)
	defer cancel()

	started := time.Now()
	outcome, err := s.provider.Submit(callCtx, core.SubmitFaxParams{
		DestinationFax: job.DestinationFax,
		MediaURL:       mediaURL,
	})
	metrics.EmitProviderCall(s.metrics, "submit", time.Since(started), err)
	if err != nil {
		s.logger.WarnContext(ctx, "provider submission errored",
			"fax_job_id", job.ID, "err", err)
		outcome = &model.SubmissionOutcome{Accepted: false, FailureReason: err.Error()}
	}

	updated, err := s.reconcile.ApplySubmissionOutcome(ctx, job.ID, *outcome)
	if err != nil {
		return nil, err
	}

	if updated.Status == model.FaxJobStatusFailed {
		s.track(ctx, "job_failed", updated.ID, updated.IPAddress, nil)
	}
	return updated, nil
}

func (s *FaxJobService) requestRemoteCancel(ctx context.Context, job *model.FaxJob) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.ProviderCallTimeout)
	defer cancel()

	started := time.Now()
	outcome, err := s.provider.RequestCancel(callCtx, *job.ProviderJobID)
	metrics.EmitProviderCall(s.metrics, "cancel", time.Since(started), err)
	if err != nil {
		s.logger.WarnContext(ctx, "remote cancel request failed",
			"fax_job_id", job.ID, "provider_job_id", *job.ProviderJobID, "err", err)
		return
	}
	s.logger.InfoContext(ctx, "remote cancel requested",
		"fax_job_id", job.ID, "provider_status", outcome.ProviderStatus)
}

func (s *FaxJobService) countrySupported(country string) bool {
	for _, c := range s.config.SupportedCountries {
		if strings.EqualFold(strings.TrimSpace(c), country) {
			return true
		}
	}
	return false
}

// track records a fire-and-forget analytics event.
func (s *FaxJobService) track(
	ctx context.Context,
	name, entityID string,
	ip *string,
	meta map[string]string,
) {
	if s.analytics == nil {
		return
	}

	var metadata []byte
	if len(meta) > 0 {
		metadata, _ = json.Marshal(meta)
	}

	if err := s.analytics.Insert(ctx, &model.AnalyticsEvent{
		EventName: name,
		EntityID:  &entityID,
		IPAddress: ip,
		Metadata:  metadata,
	}); err != nil {
		s.logger.DebugContext(ctx, "analytics insert failed", "event", name, "err", err)
	}
}
