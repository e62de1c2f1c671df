package config

import "strings"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the externally reachable base URL of the application
	// (e.g., "https://fax.example.com"). Used to build the public media
	// URLs the fax provider fetches documents from.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// AdminToken guards the internal task endpoints. When empty, those
	// endpoints are disabled.
	AdminToken string `env:"INTERNAL_ADMIN_TOKEN" envDefault:""`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	h.AdminToken = strings.TrimSpace(h.AdminToken)
}
