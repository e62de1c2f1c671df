package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openfax/faxd/internal/core"
	"github.com/openfax/faxd/internal/domain/model"
	apperrors "github.com/openfax/faxd/internal/errors"
	"github.com/openfax/faxd/internal/observability/notify"
)

// fakeJobRepo is an in-memory FaxJobRepository that mirrors the transition
// semantics of the SQL implementation: write-once provider job id, timestamps
// set at most once, timeline entries appended in receipt order.
type fakeJobRepo struct {
	mu       sync.Mutex
	jobs     map[string]*model.FaxJob
	timeline map[string][]*model.TimelineEntry
	seq      int
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{
		jobs:     make(map[string]*model.FaxJob),
		timeline: make(map[string][]*model.TimelineEntry),
	}
}

func (r *fakeJobRepo) Create(_ context.Context, params core.CreateFaxJobParams) (*model.FaxJob, error) {
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
	return copyJob(job), nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, id string) (*model.FaxJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("fax job not found")
	}
	return copyJob(job), nil
}

func (r *fakeJobRepo) Mutate(_ context.Context, id string, fn core.MutateFunc) (*model.FaxJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("fax job not found")
	}
	return r.mutateLocked(job, fn)
}

func (r *fakeJobRepo) MutateByProviderJobID(
	_ context.Context,
	providerJobID string,
	fn core.MutateFunc,
) (*model.FaxJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, job := range r.jobs {
		if job.ProviderJobID != nil && *job.ProviderJobID == providerJobID {
			return r.mutateLocked(job, fn)
		}
	}
	return nil, apperrors.NotFound("fax job not found")
}

func (r *fakeJobRepo) mutateLocked(job *model.FaxJob, fn core.MutateFunc) (*model.FaxJob, error) {
	t, err := fn(copyJob(job))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return copyJob(job), nil
	}

	now := time.Now().UTC()
	if t.Next != "" && t.Next != job.Status {
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

	return copyJob(job), nil
}

func (r *fakeJobRepo) Timeline(_ context.Context, jobID string) ([]*model.TimelineEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]*model.TimelineEntry, len(r.timeline[jobID]))
	copy(entries, r.timeline[jobID])
	return entries, nil
}

// seed installs a job directly, bypassing Create.
func (r *fakeJobRepo) seed(job *model.FaxJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
}

func copyJob(job *model.FaxJob) *model.FaxJob {
	c := *job
	return &c
}

// fakeWebhookRepo deduplicates on (provider, external event id) like the SQL
// implementation's unique constraint.
type fakeWebhookRepo struct {
	mu          sync.Mutex
	seen        map[string]bool
	events      []*model.WebhookEvent
	insertErr   error
	deleteCount int64
	deleteErr   error
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{seen: make(map[string]bool)}
}

func (r *fakeWebhookRepo) Insert(_ context.Context, event *model.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.insertErr != nil {
		return false, r.insertErr
	}
	key := event.Provider + "|" + event.ExternalEventID
	if r.seen[key] {
		return false, nil
	}
	r.seen[key] = true
	r.events = append(r.events, event)
	return true, nil
}

func (r *fakeWebhookRepo) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	return r.deleteCount, nil
}

// fakeUploadRepo is an in-memory UploadRepository.
type fakeUploadRepo struct {
	mu        sync.Mutex
	uploads   map[string]*model.DocumentUpload
	seq       int
	createErr error
	// expired queues FindDeliveredBefore results; each call pops one batch.
	expired [][]*model.DocumentUpload
	findErr error
	deleted map[string]string
}

func newFakeUploadRepo() *fakeUploadRepo {
	return &fakeUploadRepo{
		uploads: make(map[string]*model.DocumentUpload),
		deleted: make(map[string]string),
	}
}

func (r *fakeUploadRepo) Create(_ context.Context, req model.CreateUploadRequest) (*model.DocumentUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return nil, r.createErr
	}
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

func (r *fakeUploadRepo) GetByID(_ context.Context, id string) (*model.DocumentUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	upload, ok := r.uploads[id]
	if !ok {
		return nil, apperrors.NotFound("document upload not found")
	}
	return upload, nil
}

func (r *fakeUploadRepo) GetByStorageKey(_ context.Context, storageKey string) (*model.DocumentUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, upload := range r.uploads {
		if upload.StorageKey == storageKey {
			return upload, nil
		}
	}
	return nil, apperrors.NotFound("document upload not found")
}

func (r *fakeUploadRepo) FindDeliveredBefore(
	_ context.Context,
	_ time.Time,
	_ int,
) ([]*model.DocumentUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findErr != nil {
		return nil, r.findErr
	}
	if len(r.expired) == 0 {
		return nil, nil
	}
	batch := r.expired[0]
	r.expired = r.expired[1:]
	return batch, nil
}

func (r *fakeUploadRepo) MarkDeleted(_ context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleted[id] = reason
	if upload, ok := r.uploads[id]; ok {
		now := time.Now().UTC()
		upload.DeletedAt = &now
		upload.DeletedReason = &reason
	}
	return nil
}

// seed installs an upload directly, bypassing Create.
func (r *fakeUploadRepo) seed(upload *model.DocumentUpload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads[upload.ID] = upload
}

// fakeStorage is an in-memory StorageBackend.
type fakeStorage struct {
	mu        sync.Mutex
	files     map[string][]byte
	storeErr  error
	deleteErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{files: make(map[string][]byte)}
}

func (s *fakeStorage) Store(_ context.Context, storageKey string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.storeErr != nil {
		return s.storeErr
	}
	s.files[storageKey] = content
	return nil
}

func (s *fakeStorage) Exists(_ context.Context, storageKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[storageKey]
	return ok
}

func (s *fakeStorage) Read(_ context.Context, storageKey string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, ok := s.files[storageKey]
	if !ok {
		return nil, apperrors.NotFound("file not found")
	}
	return content, nil
}

func (s *fakeStorage) Delete(_ context.Context, storageKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	_, ok := s.files[storageKey]
	delete(s.files, storageKey)
	return ok, nil
}

func (s *fakeStorage) PublicURL(storageKey string, _ time.Duration) string {
	return "https://files.test/v1/uploads/public/" + storageKey
}

// fakeProvider returns scripted outcomes and records what it was asked.
type fakeProvider struct {
	mu            sync.Mutex
	submitParams  []core.SubmitFaxParams
	submitOutcome *model.SubmissionOutcome
	submitErr     error
	cancelIDs     []string
	cancelOutcome *model.CancelOutcome
	cancelErr     error
}

func (p *fakeProvider) Submit(_ context.Context, params core.SubmitFaxParams) (*model.SubmissionOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.submitParams = append(p.submitParams, params)
	if p.submitErr != nil {
		return nil, p.submitErr
	}
	if p.submitOutcome != nil {
		return p.submitOutcome, nil
	}
	return &model.SubmissionOutcome{
		Accepted:       true,
		ProviderJobID:  "prov-123",
		ProviderStatus: "queued",
	}, nil
}

func (p *fakeProvider) RequestCancel(_ context.Context, providerJobID string) (*model.CancelOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelIDs = append(p.cancelIDs, providerJobID)
	if p.cancelErr != nil {
		return nil, p.cancelErr
	}
	if p.cancelOutcome != nil {
		return p.cancelOutcome, nil
	}
	return &model.CancelOutcome{Acknowledged: true, ProviderStatus: "cancel_requested"}, nil
}

// fakeAnalytics records analytics events.
type fakeAnalytics struct {
	mu          sync.Mutex
	events      []*model.AnalyticsEvent
	deleteCount int64
	deleteErr   error
}

func (a *fakeAnalytics) Insert(_ context.Context, event *model.AnalyticsEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAnalytics) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	if a.deleteErr != nil {
		return 0, a.deleteErr
	}
	return a.deleteCount, nil
}

func (a *fakeAnalytics) eventNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.events))
	for _, e := range a.events {
		names = append(names, e.EventName)
	}
	return names
}

// captureNotifier records completion notifications.
type captureNotifier struct {
	mu       sync.Mutex
	payloads []notify.FaxCompletionPayload
	err      error
}

func (n *captureNotifier) SendFaxCompletion(_ context.Context, payload notify.FaxCompletionPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, payload)
	return n.err
}

func strptr(s string) *string { return &s }
