// Package config defines the environment-driven application configuration.
package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and Redis configuration
//   - http.go: HTTP server configuration
//   - provider.go: Fax provider configuration
//   - storage.go: Document storage and upload limits
//   - services.go: Service mode and retention configuration
//   - observability.go: Metrics configuration
type AppConfig struct {
	// IsDev controls development mode behavior (signed URL enforcement,
	// verbose logging). Set DEV=true for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// AppSecretKey signs public upload URLs. Must be overridden in production.
	AppSecretKey string `env:"APP_SECRET_KEY" envDefault:"dev-insecure-change-me"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	// Fax provider configuration
	Provider ProviderConfig

	// Document storage configuration
	Storage StorageConfig

	// Request rate limiting configuration
	RateLimit RateLimitConfig

	// Retention sweep configuration
	Retention RetentionConfig

	// Completion email configuration
	Notifications NotificationsConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Provider.Sanitize()
	c.Storage.Sanitize()
	c.RateLimit.Sanitize()
	c.Retention.Sanitize()
	c.Notifications.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and ENVIRONMENT variables. ENVIRONMENT is
// checked as a fallback for deployments that set environment names instead.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		environment := strings.ToLower(os.Getenv("ENVIRONMENT"))
		c.IsDev = environment == "development" || environment == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsRetentionEnabled returns true if the retention sweeper service is enabled.
func (c *AppConfig) IsRetentionEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeRetention]
}
