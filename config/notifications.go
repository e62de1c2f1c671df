package config

import (
	"strings"
	"time"
)

// NotificationsConfig contains completion email configuration.
// Emails are sent through the Resend API when a fax reaches a final status.
// An empty API key disables notifications.
type NotificationsConfig struct {
	ResendAPIKey    string        `env:"RESEND_API_KEY"      envDefault:""`
	ResendFromEmail string        `env:"RESEND_FROM_EMAIL"   envDefault:"no-reply@localhost"`
	ResendAPIBase   string        `env:"RESEND_API_BASE_URL" envDefault:"https://api.resend.com"`
	SendTimeout     time.Duration `env:"RESEND_SEND_TIMEOUT" envDefault:"10s"`
}

// Enabled returns true when completion emails are configured.
func (n *NotificationsConfig) Enabled() bool {
	return n.ResendAPIKey != ""
}

// Sanitize applies guardrails to notification configuration values.
func (n *NotificationsConfig) Sanitize() {
	n.ResendAPIKey = strings.TrimSpace(n.ResendAPIKey)
	n.ResendFromEmail = strings.TrimSpace(n.ResendFromEmail)
	n.ResendAPIBase = strings.TrimRight(strings.TrimSpace(n.ResendAPIBase), "/")
	if n.ResendAPIBase == "" {
		n.ResendAPIBase = "https://api.resend.com"
	}
	if n.SendTimeout <= 0 {
		n.SendTimeout = 10 * time.Second
	}
}
