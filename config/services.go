package config

import (
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents a run mode for the application.
type ServiceMode string

const (
	// ServiceModeHTTP runs the public HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeRetention runs the background retention sweeper.
	ServiceModeRetention ServiceMode = "retention"
)

// ValidServiceModes returns all valid service modes.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeRetention,
	}
}

// ParseServices parses a comma-delimited services string into a set of
// enabled service modes. Returns an error on unknown modes.
func ParseServices(services string) (map[ServiceMode]bool, error) {
	enabled := make(map[ServiceMode]bool)
	for _, raw := range strings.Split(services, ",") {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		mode := ServiceMode(name)
		if !isValidServiceMode(mode) {
			return nil, fmt.Errorf("unknown service mode %q (valid modes: %v)", name, ValidServiceModes())
		}
		enabled[mode] = true
	}
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no services enabled (valid modes: %v)", ValidServiceModes())
	}
	return enabled, nil
}

func isValidServiceMode(mode ServiceMode) bool {
	for _, valid := range ValidServiceModes() {
		if mode == valid {
			return true
		}
	}
	return false
}

// RetentionConfig contains background retention sweep configuration.
type RetentionConfig struct {
	// Interval is how often the retention sweep runs.
	Interval time.Duration `env:"RETENTION_INTERVAL" envDefault:"15m"`

	// UploadMaxAge is how long delivered fax documents are kept before
	// the stored file is removed. Job records and timelines are never
	// removed by retention.
	UploadMaxAge time.Duration `env:"RETENTION_UPLOAD_MAX_AGE" envDefault:"24h"`

	// LogsMaxAge is how long webhook event and analytics rows are kept.
	LogsMaxAge time.Duration `env:"RETENTION_LOGS_MAX_AGE" envDefault:"720h"`

	// BatchSize caps how many uploads a single sweep deletes.
	BatchSize int `env:"RETENTION_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to retention configuration values.
func (r *RetentionConfig) Sanitize() {
	if r.Interval <= 0 {
		r.Interval = 15 * time.Minute
	}
	if r.UploadMaxAge <= 0 {
		r.UploadMaxAge = 24 * time.Hour
	}
	if r.LogsMaxAge <= 0 {
		r.LogsMaxAge = 720 * time.Hour
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 500
	}
}

// RateLimitConfig contains per-client request rate limit configuration.
type RateLimitConfig struct {
	// UploadsPerIPPerHour caps document uploads per client IP per hour.
	UploadsPerIPPerHour int `env:"RATE_LIMIT_IP_PER_HOUR" envDefault:"200"`

	// JobsPerIPPerHour caps fax job creations per client IP per hour.
	JobsPerIPPerHour int `env:"RATE_LIMIT_JOBS_PER_HOUR" envDefault:"200"`
}

// Sanitize applies guardrails to rate limit configuration values.
func (r *RateLimitConfig) Sanitize() {
	if r.UploadsPerIPPerHour < 0 {
		r.UploadsPerIPPerHour = 0
	}
	if r.JobsPerIPPerHour < 0 {
		r.JobsPerIPPerHour = 0
	}
}
