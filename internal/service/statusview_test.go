package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfax/faxd/internal/domain/model"
	apperrors "github.com/openfax/faxd/internal/errors"
)

type statusViewFixture struct {
	svc       *StatusViewService
	reconcile *reconcileFixture
}

func newStatusViewFixture(t *testing.T) *statusViewFixture {
	t.Helper()

	rf := newReconcileFixture(t)
	rf.uploads.seed(&model.DocumentUpload{ID: "upload-1", StorageKey: "doc.pdf", PageCount: 5})

	svc := NewStatusViewService(StatusViewServiceOptions{
		Jobs:    rf.jobs,
		Uploads: rf.uploads,
	})

	return &statusViewFixture{svc: svc, reconcile: rf}
}

func TestStatusViewService_Build(t *testing.T) {
	t.Run("fresh job reads created progress", func(t *testing.T) {
		f := newStatusViewFixture(t)
		job := f.reconcile.createJob(t, "")

		view, err := f.svc.Build(context.Background(), job)

		require.NoError(t, err)
		assert.Equal(t, model.FaxJobStatusCreated, view.Status)
		assert.Equal(t, 15, view.ProgressPercent)
		assert.Equal(t, "created", view.ProgressStage)
		assert.Equal(t, 5, view.PageCount)

		require.Len(t, view.Timeline, 1)
		assert.Equal(t, "job_created", view.Timeline[0].Stage)
	})

	t.Run("provider stages drive progress forward", func(t *testing.T) {
		f := newStatusViewFixture(t)
		job := f.reconcile.createJob(t, "")
		f.reconcile.acceptSubmission(t, job.ID, "prov-1")

		_, err := f.reconcile.svc.ApplyProviderEvent(context.Background(),
			providerEvent("prov-1", model.EventKindQueued))
		require.NoError(t, err)
		_, err = f.reconcile.svc.ApplyProviderEvent(context.Background(),
			providerEvent("prov-1", model.EventKindSendingStarted))
		require.NoError(t, err)

		current, err := f.reconcile.jobs.GetByID(context.Background(), job.ID)
		require.NoError(t, err)

		view, err := f.svc.Build(context.Background(), current)

		require.NoError(t, err)
		assert.Equal(t, model.FaxJobStatusSending, view.Status)
		assert.Equal(t, 82, view.ProgressPercent)
		assert.Equal(t, "fax_sending_started", view.ProgressStage)

		// job_created + submission_accepted + queued + sending_started
		require.Len(t, view.Timeline, 4)
		assert.Equal(t, "job_created", view.Timeline[0].Stage)
		assert.Equal(t, "submitted", view.Timeline[1].Stage)
		assert.Equal(t, "fax_queued", view.Timeline[2].Stage)
		assert.Equal(t, "fax_sending_started", view.Timeline[3].Stage)
	})

	t.Run("informational events never move progress backward", func(t *testing.T) {
		f := newStatusViewFixture(t)
		job := f.reconcile.createJob(t, "")
		f.reconcile.acceptSubmission(t, job.ID, "prov-1")

		_, err := f.reconcile.svc.ApplyProviderEvent(context.Background(),
			providerEvent("prov-1", model.EventKindSendingStarted))
		require.NoError(t, err)
		// A late queued event arrives after transmission started.
		_, err = f.reconcile.svc.ApplyProviderEvent(context.Background(),
			providerEvent("prov-1", model.EventKindQueued))
		require.NoError(t, err)

		current, err := f.reconcile.jobs.GetByID(context.Background(), job.ID)
		require.NoError(t, err)

		view, err := f.svc.Build(context.Background(), current)

		require.NoError(t, err)
		assert.Equal(t, 82, view.ProgressPercent)
	})

	t.Run("terminal job reads 100 with a completion marker", func(t *testing.T) {
		f := newStatusViewFixture(t)
		job := f.reconcile.createJob(t, "")
		f.reconcile.acceptSubmission(t, job.ID, "prov-1")

		_, err := f.reconcile.svc.ApplyProviderEvent(context.Background(),
			providerEvent("prov-1", model.EventKindDelivered))
		require.NoError(t, err)

		current, err := f.reconcile.jobs.GetByID(context.Background(), job.ID)
		require.NoError(t, err)

		view, err := f.svc.Build(context.Background(), current)

		require.NoError(t, err)
		assert.Equal(t, 100, view.ProgressPercent)
		assert.Equal(t, "delivered", view.ProgressStage)

		last := view.Timeline[len(view.Timeline)-1]
		assert.Equal(t, "final_delivered", last.Stage)
	})

	t.Run("failed job exposes the failure reason", func(t *testing.T) {
		f := newStatusViewFixture(t)
		job := f.reconcile.createJob(t, "")
		f.reconcile.acceptSubmission(t, job.ID, "prov-1")

		event := providerEvent("prov-1", model.EventKindFailed)
		event.FailureReason = "receiver busy"
		_, err := f.reconcile.svc.ApplyProviderEvent(context.Background(), event)
		require.NoError(t, err)

		current, err := f.reconcile.jobs.GetByID(context.Background(), job.ID)
		require.NoError(t, err)

		view, err := f.svc.Build(context.Background(), current)

		require.NoError(t, err)
		assert.Equal(t, 100, view.ProgressPercent)
		require.NotNil(t, view.FailureReason)
		assert.Equal(t, "receiver busy", *view.FailureReason)
	})

	t.Run("timeline sorts by occurrence time", func(t *testing.T) {
		f := newStatusViewFixture(t)
		job := f.reconcile.createJob(t, "")
		f.reconcile.acceptSubmission(t, job.ID, "prov-1")

		early := providerEvent("prov-1", model.EventKindQueued)
		early.OccurredAt = time.Now().UTC().Add(-time.Hour)
		_, err := f.reconcile.svc.ApplyProviderEvent(context.Background(), early)
		require.NoError(t, err)

		current, err := f.reconcile.jobs.GetByID(context.Background(), job.ID)
		require.NoError(t, err)

		view, err := f.svc.Build(context.Background(), current)

		require.NoError(t, err)
		for i := 1; i < len(view.Timeline); i++ {
			assert.False(t, view.Timeline[i].At.Before(view.Timeline[i-1].At))
		}
	})

	t.Run("unknown upload surfaces an error", func(t *testing.T) {
		f := newStatusViewFixture(t)
		job := &model.FaxJob{ID: "job-x", DocumentUploadID: "missing", Status: model.FaxJobStatusCreated}

		_, err := f.svc.Build(context.Background(), job)

		assert.True(t, apperrors.IsNotFound(err))
	})
}
