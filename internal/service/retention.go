package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openfax/faxd/config"
	"github.com/openfax/faxd/internal/core"
	obserrors "github.com/openfax/faxd/internal/observability/errors"
	"github.com/openfax/faxd/internal/observability/metrics"
	"github.com/openfax/faxd/internal/observability/statsd"
)

// RetentionServiceOptions groups dependencies for RetentionService.
type RetentionServiceOptions struct {
	Uploads   core.UploadRepository       // Required: upload metadata repository
	Webhooks  core.WebhookEventRepository // Required: webhook event repository
	Analytics core.AnalyticsRepository    // Required: analytics event repository
	Storage   core.StorageBackend         // Required: document byte storage
	Config    config.RetentionConfig      // Required: retention configuration
	Logger    *slog.Logger                // Optional: structured logger
	Metrics   statsd.Sink                 // Optional: metrics sink (StatsD-compatible)
}

// RetentionService removes expired data on a schedule.
//
// This service manages:
// - Deleting stored document bytes once every referencing job delivered and aged out.
// - Purging old raw webhook event rows.
// - Purging old analytics event rows.
//
// Job rows and their timelines are never removed. The timeline is the audit
// record of every transition and stays queryable after the document is gone.
type RetentionService struct {
	uploads   core.UploadRepository
	webhooks  core.WebhookEventRepository
	analytics core.AnalyticsRepository
	storage   core.StorageBackend
	config    config.RetentionConfig
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewRetentionService constructs a new RetentionService.
func NewRetentionService(opts RetentionServiceOptions) (*RetentionService, error) {
	if opts.Uploads == nil {
		return nil, errors.New("UploadRepository is required")
	}
	if opts.Webhooks == nil {
		return nil, errors.New("WebhookEventRepository is required")
	}
	if opts.Analytics == nil {
		return nil, errors.New("AnalyticsRepository is required")
	}
	if opts.Storage == nil {
		return nil, errors.New("StorageBackend is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "retention_service")
		logger.Debug("RetentionService initialized",
			"interval", opts.Config.Interval,
			"upload_max_age", opts.Config.UploadMaxAge,
			"logs_max_age", opts.Config.LogsMaxAge,
		)
	}

	return &RetentionService{
		uploads:   opts.Uploads,
		webhooks:  opts.Webhooks,
		analytics: opts.Analytics,
		storage:   opts.Storage,
		config:    opts.Config,
		logger:    logger,
		metrics:   opts.Metrics,
	}, nil
}

// RetentionReport summarizes one sweep.
type RetentionReport struct {
	DeletedUploads         int64 `json:"deleted_uploads"`
	DeletedWebhookEvents   int64 `json:"deleted_webhook_events"`
	DeletedAnalyticsEvents int64 `json:"deleted_analytics_events"`
}

// Run starts the retention loop and runs until the context is cancelled.
// It performs sweeps at the configured interval.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *RetentionService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting retention service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run a sweep immediately after jitter
	if _, err := s.RunOnce(ctx); err != nil {
		s.logSweepError(err, "initial sweep")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *RetentionService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

// runLoop runs the sweep loop until context is cancelled.
func (s *RetentionService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "retention service stopping", "reason", ctx.Err())
			}
			// Return nil on graceful shutdown to avoid treating it as a failure
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logSweepError(err, "sweep")
				// Continue running despite errors
			}
		}
	}
}

// RunOnce performs a single retention sweep and returns what it removed.
// Partial failures are aggregated; every step still gets attempted.
func (s *RetentionService) RunOnce(ctx context.Context) (RetentionReport, error) {
	start := time.Now()
	now := time.Now().UTC()

	var (
		report RetentionReport
		errs   []error
	)

	uploads, uploadsErr := s.sweepDeliveredUploads(ctx, now.Add(-s.config.UploadMaxAge))
	report.DeletedUploads = uploads
	if uploadsErr != nil {
		errs = append(errs, fmt.Errorf("sweep delivered uploads: %w", uploadsErr))
	}

	logsCutoff := now.Add(-s.config.LogsMaxAge)

	webhooks, webhooksErr := s.webhooks.DeleteOlderThan(ctx, logsCutoff)
	report.DeletedWebhookEvents = webhooks
	if webhooksErr != nil {
		errs = append(errs, fmt.Errorf("purge webhook events: %w", webhooksErr))
	}

	analytics, analyticsErr := s.analytics.DeleteOlderThan(ctx, logsCutoff)
	report.DeletedAnalyticsEvents = analytics
	if analyticsErr != nil {
		errs = append(errs, fmt.Errorf("purge analytics events: %w", analyticsErr))
	}

	s.emitSweepMetrics(report, time.Since(start), firstError(uploadsErr, webhooksErr, analyticsErr))

	total := report.DeletedUploads + report.DeletedWebhookEvents + report.DeletedAnalyticsEvents
	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "retention sweep removed expired data",
			"uploads", report.DeletedUploads,
			"webhook_events", report.DeletedWebhookEvents,
			"analytics_events", report.DeletedAnalyticsEvents,
		)
	}

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if isContextCancellation(joined) {
			return report, context.Canceled
		}
		return report, fmt.Errorf("retention sweep failed: %w", joined)
	}

	return report, nil
}

// sweepDeliveredUploads removes stored bytes for uploads whose jobs all
// delivered before the cutoff, then marks the metadata row deleted. Loops in
// batches until no eligible uploads remain.
func (s *RetentionService) sweepDeliveredUploads(ctx context.Context, cutoff time.Time) (int64, error) {
	var totalCount int64
	for {
		batch, err := s.uploads.FindDeliveredBefore(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			return totalCount, err
		}
		if len(batch) == 0 {
			break
		}

		for _, upload := range batch {
			if err := s.deleteUpload(ctx, upload.ID, upload.StorageKey); err != nil {
				return totalCount, err
			}
			totalCount++
		}

		// Check context between batches
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	return totalCount, nil
}

// deleteUpload removes the stored bytes first so a crash between the two steps
// leaves a metadata row pointing at a missing file, which the next sweep
// resolves, rather than an orphaned file nothing references.
func (s *RetentionService) deleteUpload(ctx context.Context, id, storageKey string) error {
	if _, err := s.storage.Delete(ctx, storageKey); err != nil {
		return fmt.Errorf("delete stored document %s: %w", storageKey, err)
	}

	if err := s.uploads.MarkDeleted(ctx, id, "retention"); err != nil {
		return fmt.Errorf("mark upload %s deleted: %w", id, err)
	}

	return nil
}

func (s *RetentionService) emitSweepMetrics(report RetentionReport, elapsed time.Duration, firstErr error) {
	if s.metrics == nil {
		return
	}

	total := report.DeletedUploads + report.DeletedWebhookEvents + report.DeletedAnalyticsEvents

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if total == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("retention.sweep", 1, tags)

	if elapsed > 0 {
		s.metrics.Timing("retention.sweep_duration", elapsed, metrics.CloneTags(tags))
	}

	s.emitSweepOperationMetric("delete_uploads", report.DeletedUploads)
	s.emitSweepOperationMetric("purge_webhook_events", report.DeletedWebhookEvents)
	s.emitSweepOperationMetric("purge_analytics_events", report.DeletedAnalyticsEvents)

	if firstErr == nil {
		s.metrics.Gauge("retention.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *RetentionService) emitSweepOperationMetric(operation string, count int64) {
	if count <= 0 {
		return
	}

	s.metrics.Count("retention.rows_removed", count, map[string]string{
		"operation": operation,
	})
}

func (s *RetentionService) logSweepError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
