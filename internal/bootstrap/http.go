package bootstrap

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/openfax/faxd/config"
	"github.com/openfax/faxd/internal/core"
	httpx "github.com/openfax/faxd/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	// The limiter is a concrete pointer; only hand the router a non-nil
	// interface when a limiter actually exists.
	var limiter core.RateLimiter
	if cfg.Services.Limiter != nil {
		limiter = cfg.Services.Limiter
	}
	var verifier core.WebhookVerifier
	if cfg.Services.Verifier != nil {
		verifier = cfg.Services.Verifier
	}
	var signer httpx.SignedURLVerifier
	if cfg.Services.Storage != nil {
		signer = cfg.Services.Storage
	}
	var pinger httpx.Pinger
	if cfg.DB != nil {
		pinger = cfg.DB
	}

	services := httpx.RouterServices{
		Jobs:                cfg.Services.Jobs,
		Uploads:             cfg.Services.Uploads,
		Status:              cfg.Services.Status,
		Reconcile:           cfg.Services.Reconcile,
		Retention:           cfg.Services.Retention,
		Verifier:            verifier,
		Normalizer:          cfg.Services.Normalizer,
		Signer:              signer,
		Limiter:             limiter,
		DB:                  pinger,
		UploadsPerIPPerHour: appCfg.RateLimit.UploadsPerIPPerHour,
		JobsPerIPPerHour:    appCfg.RateLimit.JobsPerIPPerHour,
		// Multipart framing adds overhead on top of the document itself.
		MaxUploadBodyBytes: appCfg.Storage.MaxUploadSizeBytes() + (1 << 20),
		AdminToken:         appCfg.HTTP.AdminToken,
		Logger:             logger,
	}

	return startServer(logger, httpx.NewRouter(services), appCfg.HTTP.Addr)
}

func startServer(logger *slog.Logger, handler http.Handler, addr string) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(cfg.Context, 10*time.Second)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
