package config

import (
	"strings"
	"time"
)

// StorageConfig contains document storage and upload limit configuration.
type StorageConfig struct {
	// UploadsPath is the directory stored documents live in.
	UploadsPath string `env:"UPLOADS_PATH" envDefault:"data/uploads"`

	// PresignTTL bounds how long generated public upload URLs stay valid.
	PresignTTL time.Duration `env:"STORAGE_PRESIGN_TTL" envDefault:"15m"`

	// MaxUploadSizeMB caps a single uploaded document.
	MaxUploadSizeMB int `env:"MAX_UPLOAD_SIZE_MB" envDefault:"15"`

	// MaxPagesPerJob caps document page count per fax.
	MaxPagesPerJob int `env:"MAX_PAGES_PER_JOB" envDefault:"25"`

	// SupportedCountries is a comma-delimited list of accepted destination
	// country codes.
	SupportedCountries string `env:"SUPPORTED_COUNTRY_CODES" envDefault:"US"`
}

// MaxUploadSizeBytes returns the upload cap in bytes.
func (s *StorageConfig) MaxUploadSizeBytes() int64 {
	return int64(s.MaxUploadSizeMB) << 20
}

// SupportedCountryList returns the parsed country code list.
func (s *StorageConfig) SupportedCountryList() []string {
	var out []string
	for _, c := range strings.Split(s.SupportedCountries, ",") {
		if trimmed := strings.ToUpper(strings.TrimSpace(c)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Sanitize applies guardrails to storage configuration values.
func (s *StorageConfig) Sanitize() {
	s.UploadsPath = strings.TrimSpace(s.UploadsPath)
	if s.MaxUploadSizeMB < 1 {
		s.MaxUploadSizeMB = 1
	}
	if s.MaxPagesPerJob < 1 {
		s.MaxPagesPerJob = 1
	}
	if s.PresignTTL <= 0 {
		s.PresignTTL = 15 * time.Minute
	}
	if len(s.SupportedCountryList()) == 0 {
		s.SupportedCountries = "US"
	}
}
