package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/openfax/faxd/internal/core"
	"github.com/openfax/faxd/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs      *service.FaxJobService
	Uploads   *service.UploadService
	Status    *service.StatusViewService
	Reconcile *service.ReconcileService
	Retention *service.RetentionService

	Verifier   core.WebhookVerifier
	Normalizer core.EventNormalizer
	Signer     SignedURLVerifier
	Limiter    core.RateLimiter
	DB         Pinger

	// UploadsPerIPPerHour and JobsPerIPPerHour cap requests per client IP.
	// Zero disables the corresponding limit.
	UploadsPerIPPerHour int
	JobsPerIPPerHour    int
	MaxUploadBodyBytes  int64
	AdminToken          string

	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	jobHandlers := &FaxJobHandlers{Jobs: services.Jobs, Status: services.Status}
	uploadHandlers := &UploadHandlers{
		Svc:          services.Uploads,
		Signer:       services.Signer,
		MaxBodyBytes: services.MaxUploadBodyBytes,
	}
	webhookHandlers := &WebhookHandlers{
		Reconcile:  services.Reconcile,
		Verifier:   services.Verifier,
		Normalizer: services.Normalizer,
		Logger:     logger,
	}
	healthHandlers := &HealthHandlers{DB: services.DB}

	uploadLimit := RateLimit(services.Limiter, RateLimitConfig{
		Scope:  "uploads",
		Limit:  services.UploadsPerIPPerHour,
		Window: time.Hour,
	}, logger)
	jobLimit := RateLimit(services.Limiter, RateLimitConfig{
		Scope:  "jobs",
		Limit:  services.JobsPerIPPerHour,
		Window: time.Hour,
	}, logger)

	mux.Handle("POST /v1/uploads", uploadLimit(http.HandlerFunc(uploadHandlers.Upload)))
	mux.Handle("GET /v1/uploads/public/{storageKey}", http.HandlerFunc(uploadHandlers.ServePublic))

	mux.Handle("POST /v1/fax/jobs", jobLimit(http.HandlerFunc(jobHandlers.CreateJob)))
	mux.Handle("GET /v1/fax/jobs/{id}", http.HandlerFunc(jobHandlers.GetJob))
	mux.Handle("POST /v1/fax/jobs/{id}/cancel", http.HandlerFunc(jobHandlers.CancelJob))

	mux.Handle("POST /v1/webhooks/telnyx", http.HandlerFunc(webhookHandlers.TelnyxWebhook))

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandlers.Liveness))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandlers.Liveness))
	mux.Handle("GET /v1/health", http.HandlerFunc(healthHandlers.Readiness))

	if services.Retention != nil && services.AdminToken != "" {
		internalHandlers := &InternalHandlers{
			Retention:  services.Retention,
			AdminToken: services.AdminToken,
		}
		mux.Handle("POST /v1/internal/tasks/retention-run", http.HandlerFunc(internalHandlers.RetentionRun))
	}

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}
