// Package mocks provides mock implementations for testing the faxd service.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the port interfaces in internal/core. The mocks are generated using
// go:generate directives and provide a fluent API for setting up test
// expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockFaxJobRepository(ctrl)
//	mockRepo.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for FaxJobRepository interface from internal/core package.
// This creates MockFaxJobRepository with methods for all FaxJobRepository interface methods:
// Create, GetByID, Mutate, MutateByProviderJobID, Timeline
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=fax_job_repository_mock.go github.com/openfax/faxd/internal/core FaxJobRepository

// Generate mock for WebhookEventRepository interface from internal/core package.
// This creates MockWebhookEventRepository with methods:
// Insert, DeleteOlderThan
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=webhook_event_repository_mock.go github.com/openfax/faxd/internal/core WebhookEventRepository

// Generate mock for UploadRepository interface from internal/core package.
// This creates MockUploadRepository with methods:
// Create, GetByID, GetByStorageKey, FindDeliveredBefore, MarkDeleted
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=upload_repository_mock.go github.com/openfax/faxd/internal/core UploadRepository

// Generate mock for FaxProvider interface from internal/core package.
// This creates MockFaxProvider with methods:
// Submit, RequestCancel
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=fax_provider_mock.go github.com/openfax/faxd/internal/core FaxProvider

// Generate mock for StorageBackend interface from internal/core package.
// This creates MockStorageBackend with methods:
// Store, Exists, Read, Delete, PublicURL
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=storage_backend_mock.go github.com/openfax/faxd/internal/core StorageBackend

// Generate mock for RateLimiter interface from internal/core package.
// This creates MockRateLimiter with methods:
// Allow
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=rate_limiter_mock.go github.com/openfax/faxd/internal/core RateLimiter
