package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/openfax/faxd/config"
	"github.com/openfax/faxd/internal/adapters/redisrate"
	"github.com/openfax/faxd/internal/adapters/storage"
	"github.com/openfax/faxd/internal/adapters/telnyx"
	"github.com/openfax/faxd/internal/observability/notify"
	"github.com/openfax/faxd/internal/observability/notify/resend"
)

// providerStack groups the Telnyx-facing adapters: the outbound client, the
// webhook payload normalizer, and the webhook signature verifier.
type providerStack struct {
	Provider   *telnyx.Provider
	Normalizer *telnyx.Normalizer
	Verifier   *telnyx.Verifier
}

func buildProviderStack(cfg config.ProviderConfig, logger *slog.Logger) (providerStack, error) {
	provider, err := telnyx.NewProvider(telnyx.ProviderConfig{
		APIKey:       cfg.TelnyxAPIKey,
		ConnectionID: cfg.TelnyxConnectionID,
		FromNumber:   cfg.TelnyxFromNumber,
		Timeout:      cfg.CallTimeout,
		MockMode:     cfg.MockProviders,
		Logger:       logger,
	})
	if err != nil {
		return providerStack{}, fmt.Errorf("create telnyx provider: %w", err)
	}

	verifier, err := telnyx.NewVerifier(cfg.TelnyxWebhookPublicKey, cfg.WebhookTimestampTolerance)
	if err != nil {
		return providerStack{}, fmt.Errorf("create telnyx webhook verifier: %w", err)
	}

	return providerStack{
		Provider:   provider,
		Normalizer: telnyx.MustNewNormalizer(),
		Verifier:   verifier,
	}, nil
}

func buildStorage(cfg *config.AppConfig, logger *slog.Logger) (*storage.Local, error) {
	local, err := storage.NewLocal(storage.LocalConfig{
		UploadsPath: cfg.Storage.UploadsPath,
		BaseURL:     cfg.HTTP.BaseURL,
		SecretKey:   cfg.AppSecretKey,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	return local, nil
}

func buildRateLimiter(client redis.UniversalClient, logger *slog.Logger) *redisrate.Limiter {
	if client == nil {
		return nil
	}
	return redisrate.NewLimiter(client, logger)
}

// buildNotifier returns nil when completion emails are not configured; the
// reconcile service treats a nil sink as "do not notify".
//
//nolint:ireturn // notify.Sink keeps the email backend swappable.
func buildNotifier(cfg config.NotificationsConfig, logger *slog.Logger) notify.Sink {
	if !cfg.Enabled() {
		return nil
	}

	client, err := resend.NewClient(resend.Config{
		APIKey:     cfg.ResendAPIKey,
		FromEmail:  cfg.ResendFromEmail,
		APIBaseURL: cfg.ResendAPIBase,
		Timeout:    cfg.SendTimeout,
	})
	if err != nil {
		if logger != nil {
			logger.Error("failed to initialise resend notifier", "error", err)
		}
		return nil
	}
	return client
}
