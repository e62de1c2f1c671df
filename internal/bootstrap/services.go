package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/openfax/faxd/config"
	"github.com/openfax/faxd/internal/adapters/redisrate"
	"github.com/openfax/faxd/internal/adapters/storage"
	"github.com/openfax/faxd/internal/adapters/telnyx"
	"github.com/openfax/faxd/internal/data"
	"github.com/openfax/faxd/internal/observability/notify"
	"github.com/openfax/faxd/internal/observability/statsd"
	"github.com/openfax/faxd/internal/service"
)

// ServiceContainer holds all application services and the adapters the HTTP
// layer needs alongside them.
type ServiceContainer struct {
	Jobs      *service.FaxJobService
	Uploads   *service.UploadService
	Status    *service.StatusViewService
	Reconcile *service.ReconcileService
	Retention *service.RetentionService

	Storage    *storage.Local
	Normalizer *telnyx.Normalizer
	Verifier   *telnyx.Verifier
	Limiter    *redisrate.Limiter

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
	Notifier      notify.Sink
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB        *sql.DB
	Jobs      *data.FaxJobRepo
	Webhooks  *data.WebhookEventRepo
	Uploads   *data.UploadRepo
	Analytics *data.AnalyticsRepo
}

// buildObservability configures the metrics sink and completion notifier.
func buildObservability(logger *slog.Logger, cfg *config.AppConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Observability.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Observability.Metrics.StatsdAddress,
			Prefix:  "faxd",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Observability.Metrics,
		Notifier:      buildNotifier(cfg.Notifications, obsLogger),
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, logger *slog.Logger) *serviceRepositories {
	repoCfg := data.RepoConfig{Logger: logger}
	return &serviceRepositories{
		DB:        db,
		Jobs:      data.NewFaxJobRepo(db, repoCfg),
		Webhooks:  data.NewWebhookEventRepo(db, repoCfg),
		Uploads:   data.NewUploadRepo(db, repoCfg),
		Analytics: data.NewAnalyticsRepo(db, repoCfg),
	}
}

type domainServicesOptions struct {
	Repos         *serviceRepositories
	Provider      providerStack
	Storage       *storage.Local
	Limiter       *redisrate.Limiter
	Observability ObservabilityContainer
	Config        *config.AppConfig
	Logger        *slog.Logger
}

// buildDomainServices wires business services using repositories and adapters.
func buildDomainServices(opts *domainServicesOptions) (ServiceContainer, error) {
	svcLogger := opts.Logger
	if svcLogger == nil {
		svcLogger = slog.Default()
	}
	appCfg := opts.Config

	reconcile := service.NewReconcileService(service.ReconcileServiceOptions{
		Jobs:     opts.Repos.Jobs,
		Webhooks: opts.Repos.Webhooks,
		Observers: service.ReconcileObservers{
			Logger:   svcLogger,
			Metrics:  opts.Observability.MetricsSink,
			Notifier: opts.Observability.Notifier,
			Uploads:  opts.Repos.Uploads,
		},
	})

	jobs := service.NewFaxJobService(service.FaxJobServiceOptions{
		Jobs:      opts.Repos.Jobs,
		Uploads:   opts.Repos.Uploads,
		Reconcile: reconcile,
		Provider:  opts.Provider.Provider,
		Storage:   opts.Storage,
		Analytics: opts.Repos.Analytics,
		Config: service.FaxJobServiceConfig{
			MediaURLTTL:         appCfg.Storage.PresignTTL,
			SupportedCountries:  appCfg.Storage.SupportedCountryList(),
			ProviderCallTimeout: appCfg.Provider.CallTimeout,
		},
		Logger:  svcLogger,
		Metrics: opts.Observability.MetricsSink,
	})

	uploads := service.NewUploadService(service.UploadServiceOptions{
		Uploads:   opts.Repos.Uploads,
		Storage:   opts.Storage,
		Analytics: opts.Repos.Analytics,
		Config: service.UploadServiceConfig{
			MaxSizeBytes: appCfg.Storage.MaxUploadSizeBytes(),
			MaxPages:     appCfg.Storage.MaxPagesPerJob,
		},
		Logger: svcLogger,
	})

	status := service.NewStatusViewService(service.StatusViewServiceOptions{
		Jobs:    opts.Repos.Jobs,
		Uploads: opts.Repos.Uploads,
		Logger:  svcLogger,
	})

	retention, err := service.NewRetentionService(service.RetentionServiceOptions{
		Uploads:   opts.Repos.Uploads,
		Webhooks:  opts.Repos.Webhooks,
		Analytics: opts.Repos.Analytics,
		Storage:   opts.Storage,
		Config:    appCfg.Retention,
		Logger:    svcLogger,
		Metrics:   opts.Observability.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create retention service: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobs,
		Uploads:       uploads,
		Status:        status,
		Reconcile:     reconcile,
		Retention:     retention,
		Storage:       opts.Storage,
		Normalizer:    opts.Provider.Normalizer,
		Verifier:      opts.Provider.Verifier,
		Limiter:       opts.Limiter,
		Observability: opts.Observability,
	}, nil
}

// NewServices wires the full service container from configuration and the
// shared database and Redis connections.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	provider, err := buildProviderStack(deps.Config.Provider, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	store, err := buildStorage(deps.Config, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	return buildDomainServices(&domainServicesOptions{
		Repos:         buildRepositories(deps.DB, logger),
		Provider:      provider,
		Storage:       store,
		Limiter:       buildRateLimiter(deps.RedisClient, logger),
		Observability: buildObservability(logger, deps.Config),
		Config:        deps.Config,
		Logger:        logger,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		DB:       deps.cfg.DB,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newRetentionBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeRetention,
		name: "retention",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Services.Retention == nil {
				return nil
			}
			return deps.cfg.Services.Retention.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newRetentionBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	modes := []config.ServiceMode{
		config.ServiceModeHTTP,
		config.ServiceModeRetention,
	}

	count := 0
	for _, mode := range modes {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop drains the HTTP server and background services concurrently;
// every component gets the full shutdown window instead of queueing behind
// the others.
func gracefulStop(cfg shutdownConfig) error {
	var g errgroup.Group

	if cfg.httpServer != nil {
		g.Go(func() error {
			// The service context is already cancelled here, so the drain
			// window must come from a fresh context or Shutdown returns
			// before in-flight requests finish.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
			defer cancel()

			return ShutdownHTTPServer(ShutdownConfig{
				Context: shutdownCtx,
				Server:  cfg.httpServer,
				Logger:  cfg.logger,
			})
		})
	}

	for _, svc := range cfg.backgrounds {
		g.Go(func() error {
			waitForService(svc.done, svc.name, cfg.logger)
			return nil
		})
	}

	return g.Wait()
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
