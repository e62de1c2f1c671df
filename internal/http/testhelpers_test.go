package httpx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openfax/faxd/config"
	"github.com/openfax/faxd/internal/core"
	"github.com/openfax/faxd/internal/domain/model"
	apperrors "github.com/openfax/faxd/internal/errors"
	"github.com/openfax/faxd/internal/service"
)

// memJobs is an in-memory FaxJobRepository backing handler tests.
type memJobs struct {
	mu       sync.Mutex
	jobs     map[string]*model.FaxJob
	timeline map[string][]*model.TimelineEntry
	seq      int
}

func newMemJobs() *memJobs {
	return &memJobs{
		jobs:     make(map[string]*model.FaxJob),
		timeline: make(map[string][]*model.TimelineEntry),
	}
}

func (r *memJobs) Create(_ context.Context, params core.CreateFaxJobParams) (*model.FaxJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	now := time.Now().UTC()
	job := &model.FaxJob{
		ID:                 fmt.Sprintf("job-%d", r.seq),
		DocumentUploadID:   params.DocumentUploadID,
		DestinationFax:     params.DestinationFax,
		DestinationCountry: params.DestinationCountry,
		NotificationEmail:  params.NotificationEmail,
		IPAddress:          params.IPAddress,
		Status:             model.FaxJobStatusCreated,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	r.jobs[job.ID] = job
	c := *job
	return &c, nil
}

func (r *memJobs) GetByID(_ context.Context, id string) (*model.FaxJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("fax job not found")
	}
	c := *job
	return &c, nil
}

func (r *memJobs) Mutate(_ context.Context, id string, fn core.MutateFunc) (*model.FaxJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("fax job not found")
	}
	return r.apply(job, fn)
}

func (r *memJobs) MutateByProviderJobID(
	_ context.Context,
	providerJobID string,
	fn core.MutateFunc,
) (*model.FaxJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, job := range r.jobs {
		if job.ProviderJobID != nil && *job.ProviderJobID == providerJobID {
			return r.apply(job, fn)
		}
	}
	return nil, apperrors.NotFound("fax job not found")
}

func (r *memJobs) apply(job *model.FaxJob, fn core.MutateFunc) (*model.FaxJob, error) {
	snapshot := *job
	t, err := fn(&snapshot)
	if err != nil {
		return nil, err
	}
	if t == nil {
		c := *job
		return &c, nil
	}

	now := time.Now().UTC()
	if t.Next != "" {
		job.Status = t.Next
	}
	if t.SetProviderJobID != nil && job.ProviderJobID == nil {
		v := *t.SetProviderJobID
		job.ProviderJobID = &v
	}
	if t.SetProviderStatus != nil {
		v := *t.SetProviderStatus
		job.ProviderStatus = &v
	}
	if t.SetFailureReason != nil {
		v := *t.SetFailureReason
		job.FailureReason = &v
	}
	if t.MarkSubmitted && job.SubmittedAt == nil {
		v := now
		job.SubmittedAt = &v
	}
	if t.MarkCompleted && job.CompletedAt == nil {
		v := now
		job.CompletedAt = &v
	}
	job.UpdatedAt = now

	for _, e := range t.Timeline {
		occurredAt := e.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = now
		}
		r.seq++
		r.timeline[job.ID] = append(r.timeline[job.ID], &model.TimelineEntry{
			ID:         fmt.Sprintf("tl-%d", r.seq),
			FaxJobID:   job.ID,
			EventKind:  e.EventKind,
			Source:     e.Source,
			Detail:     e.Detail,
			OccurredAt: occurredAt,
			RecordedAt: now,
		})
	}

	c := *job
	return &c, nil
}

func (r *memJobs) Timeline(_ context.Context, jobID string) ([]*model.TimelineEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]*model.TimelineEntry, len(r.timeline[jobID]))
	copy(entries, r.timeline[jobID])
	return entries, nil
}

// memWebhooks deduplicates on (provider, external event id).
type memWebhooks struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemWebhooks() *memWebhooks {
	return &memWebhooks{seen: make(map[string]bool)}
}

func (r *memWebhooks) Insert(_ context.Context, event *model.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := event.Provider + "|" + event.ExternalEventID
	if r.seen[key] {
		return false, nil
	}
	r.seen[key] = true
	return true, nil
}

func (r *memWebhooks) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// memUploads is an in-memory UploadRepository.
type memUploads struct {
	mu      sync.Mutex
	uploads map[string]*model.DocumentUpload
	seq     int
}

func newMemUploads() *memUploads {
	return &memUploads{uploads: make(map[string]*model.DocumentUpload)}
}

func (r *memUploads) Create(_ context.Context, req model.CreateUploadRequest) (*model.DocumentUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	upload := &model.DocumentUpload{
		ID:               fmt.Sprintf("upload-%d", r.seq),
		StorageKey:       req.StorageKey,
		MimeType:         req.MimeType,
		OriginalFilename: req.OriginalFilename,
		PageCount:        req.PageCount,
		Checksum:         req.Checksum,
		FileSizeBytes:    req.FileSizeBytes,
		CreatedAt:        time.Now().UTC(),
	}
	r.uploads[upload.ID] = upload
	return upload, nil
}

func (r *memUploads) GetByID(_ context.Context, id string) (*model.DocumentUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	upload, ok := r.uploads[id]
	if !ok {
		return nil, apperrors.NotFound("document upload not found")
	}
	return upload, nil
}

func (r *memUploads) GetByStorageKey(_ context.Context, storageKey string) (*model.DocumentUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, upload := range r.uploads {
		if upload.StorageKey == storageKey {
			return upload, nil
		}
	}
	return nil, apperrors.NotFound("document upload not found")
}

func (r *memUploads) FindDeliveredBefore(
	_ context.Context,
	_ time.Time,
	_ int,
) ([]*model.DocumentUpload, error) {
	return nil, nil
}

func (r *memUploads) MarkDeleted(_ context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if upload, ok := r.uploads[id]; ok {
		now := time.Now().UTC()
		upload.DeletedAt = &now
		upload.DeletedReason = &reason
	}
	return nil
}

// memStorage is an in-memory StorageBackend.
type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
}

func (s *memStorage) Store(_ context.Context, storageKey string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[storageKey] = content
	return nil
}

func (s *memStorage) Exists(_ context.Context, storageKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[storageKey]
	return ok
}

func (s *memStorage) Read(_ context.Context, storageKey string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, ok := s.files[storageKey]
	if !ok {
		return nil, apperrors.NotFound("file not found")
	}
	return content, nil
}

func (s *memStorage) Delete(_ context.Context, storageKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.files[storageKey]
	delete(s.files, storageKey)
	return ok, nil
}

func (s *memStorage) PublicURL(storageKey string, _ time.Duration) string {
	return "https://files.test/v1/uploads/public/" + storageKey
}

// stubProvider accepts every submission with a fixed provider job id.
type stubProvider struct {
	mu        sync.Mutex
	cancelIDs []string
}

func (p *stubProvider) Submit(_ context.Context, _ core.SubmitFaxParams) (*model.SubmissionOutcome, error) {
	return &model.SubmissionOutcome{
		Accepted:       true,
		ProviderJobID:  "prov-123",
		ProviderStatus: "queued",
	}, nil
}

func (p *stubProvider) RequestCancel(_ context.Context, providerJobID string) (*model.CancelOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelIDs = append(p.cancelIDs, providerJobID)
	return &model.CancelOutcome{Acknowledged: true, ProviderStatus: "cancel_requested"}, nil
}

// stubLimiter scripts rate limit decisions.
type stubLimiter struct {
	mu      sync.Mutex
	allowed bool
	err     error
	keys    []string
}

func (l *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return l.allowed, l.err
}

// testEnv bundles the wired services and fakes behind a test router.
type testEnv struct {
	jobs     *memJobs
	uploads  *memUploads
	storage  *memStorage
	provider *stubProvider

	uploadSvc *service.UploadService
	jobSvc    *service.FaxJobService
	reconcile *service.ReconcileService
	statusSvc *service.StatusViewService
	retention *service.RetentionService
}

func newTestEnv() *testEnv {
	jobs := newMemJobs()
	uploads := newMemUploads()
	storage := newMemStorage()
	provider := &stubProvider{}

	reconcile := service.NewReconcileService(service.ReconcileServiceOptions{
		Jobs:     jobs,
		Webhooks: newMemWebhooks(),
	})

	uploadSvc := service.NewUploadService(service.UploadServiceOptions{
		Uploads: uploads,
		Storage: storage,
	})

	jobSvc := service.NewFaxJobService(service.FaxJobServiceOptions{
		Jobs:      jobs,
		Uploads:   uploads,
		Reconcile: reconcile,
		Provider:  provider,
		Storage:   storage,
	})

	statusSvc := service.NewStatusViewService(service.StatusViewServiceOptions{
		Jobs:    jobs,
		Uploads: uploads,
	})

	retention, err := service.NewRetentionService(service.RetentionServiceOptions{
		Uploads:   uploads,
		Webhooks:  newMemWebhooks(),
		Analytics: memAnalytics{},
		Storage:   storage,
		Config: config.RetentionConfig{
			Interval:     time.Minute,
			UploadMaxAge: 24 * time.Hour,
			LogsMaxAge:   720 * time.Hour,
			BatchSize:    10,
		},
	})
	if err != nil {
		panic(err)
	}

	return &testEnv{
		jobs:      jobs,
		uploads:   uploads,
		storage:   storage,
		provider:  provider,
		uploadSvc: uploadSvc,
		jobSvc:    jobSvc,
		reconcile: reconcile,
		statusSvc: statusSvc,
		retention: retention,
	}
}

type memAnalytics struct{}

func (memAnalytics) Insert(_ context.Context, _ *model.AnalyticsEvent) error { return nil }

func (memAnalytics) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

// seedUpload stores a one-page PDF and registers its metadata.
func (e *testEnv) seedUpload() *model.DocumentUpload {
	content := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Page >>\nendobj\n%%EOF\n")
	upload, err := e.uploadSvc.Store(context.Background(), content, "doc.pdf", "")
	if err != nil {
		panic(err)
	}
	return upload
}
