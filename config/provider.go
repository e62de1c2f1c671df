package config

import (
	"strings"
	"time"
)

// ProviderConfig contains fax provider (Telnyx) configuration.
type ProviderConfig struct {
	// MockProviders short-circuits remote provider calls with synthetic
	// accepted outcomes. Intended for development and tests.
	MockProviders bool `env:"MOCK_PROVIDERS" envDefault:"true"`

	// TelnyxAPIKey authenticates outbound Telnyx API calls.
	TelnyxAPIKey string `env:"TELNYX_API_KEY" envDefault:""`

	// TelnyxConnectionID is the Telnyx fax application connection id.
	TelnyxConnectionID string `env:"TELNYX_CONNECTION_ID" envDefault:""`

	// TelnyxFromNumber is the E.164 sending number.
	TelnyxFromNumber string `env:"TELNYX_FROM_NUMBER" envDefault:""`

	// TelnyxWebhookPublicKey verifies inbound webhook signatures
	// (base64 or hex Ed25519 public key). Empty disables verification.
	TelnyxWebhookPublicKey string `env:"TELNYX_WEBHOOK_PUBLIC_KEY" envDefault:""`

	// WebhookTimestampTolerance bounds how stale a signed webhook may be.
	WebhookTimestampTolerance time.Duration `env:"WEBHOOK_TIMESTAMP_TOLERANCE" envDefault:"5m"`

	// CallTimeout bounds each outbound provider call.
	CallTimeout time.Duration `env:"PROVIDER_CALL_TIMEOUT" envDefault:"15s"`
}

// IsLive returns true when live Telnyx credentials are fully configured.
func (p *ProviderConfig) IsLive() bool {
	return p.TelnyxAPIKey != "" && p.TelnyxConnectionID != "" && p.TelnyxFromNumber != ""
}

// Sanitize applies guardrails to provider configuration values.
func (p *ProviderConfig) Sanitize() {
	p.TelnyxAPIKey = strings.TrimSpace(p.TelnyxAPIKey)
	p.TelnyxConnectionID = strings.TrimSpace(p.TelnyxConnectionID)
	p.TelnyxFromNumber = strings.TrimSpace(p.TelnyxFromNumber)
	p.TelnyxWebhookPublicKey = strings.TrimSpace(p.TelnyxWebhookPublicKey)

	if p.WebhookTimestampTolerance <= 0 {
		p.WebhookTimestampTolerance = 5 * time.Minute
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = 15 * time.Second
	}

	// Live credentials take precedence over mock mode.
	if p.IsLive() {
		p.MockProviders = false
	}
}
