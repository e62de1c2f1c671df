// Package resend delivers fax completion emails through the Resend HTTP API.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openfax/faxd/internal/observability/notify"
)

const defaultAPIBaseURL = "https://api.resend.com"

// Config captures the subset of Resend behaviour we need.
type Config struct {
	APIKey     string
	FromEmail  string
	APIBaseURL string
	Timeout    time.Duration
	Client     *http.Client
}

// Client sends fax completion notifications via Resend.
type Client struct {
	apiKey    string
	fromEmail string
	baseURL   string
	client    *http.Client
}

// NewClient builds a Resend client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("resend api key is required")
	}
	fromEmail := strings.TrimSpace(cfg.FromEmail)
	if fromEmail == "" {
		return nil, errors.New("resend from email is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}

	return &Client{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		baseURL:   baseURL,
		client:    hc,
	}, nil
}

// SendFaxCompletion emails the sender about their fax's terminal outcome.
func (c *Client) SendFaxCompletion(ctx context.Context, payload notify.FaxCompletionPayload) error {
	if strings.TrimSpace(payload.ToEmail) == "" {
		return errors.New("notification email is empty")
	}

	subject, text := formatMessage(payload)
	body, err := json.Marshal(map[string]any{
		"from":    c.fromEmail,
		"to":      []string{payload.ToEmail},
		"subject": subject,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("encode resend payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create resend request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("resend request failed: %w", err)
	}

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 512))
	closeErr := resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("resend %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	if readErr != nil {
		return fmt.Errorf("read resend response: %w", readErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close response body: %w", closeErr)
	}
	return nil
}

func formatMessage(payload notify.FaxCompletionPayload) (subject, text string) {
	var body strings.Builder

	switch payload.Outcome {
	case notify.OutcomeDelivered:
		subject = "Your fax was delivered"
		fmt.Fprintf(&body, "Your fax to %s was delivered successfully.\n", payload.DestinationFax)
	case notify.OutcomeCanceled:
		subject = "Your fax was canceled"
		fmt.Fprintf(&body, "Your fax to %s was canceled.\n", payload.DestinationFax)
	default:
		subject = "Your fax could not be delivered"
		fmt.Fprintf(&body, "Your fax to %s failed to send.\n", payload.DestinationFax)
		if payload.FailureReason != "" {
			fmt.Fprintf(&body, "Reason: %s\n", payload.FailureReason)
		}
	}

	if payload.PageCount > 0 {
		fmt.Fprintf(&body, "Pages: %d\n", payload.PageCount)
	}
	fmt.Fprintf(&body, "Reference: %s\n", payload.JobID)
	if !payload.CompletedAt.IsZero() {
		fmt.Fprintf(&body, "Completed: %s\n", payload.CompletedAt.UTC().Format(time.RFC1123))
	}

	return subject, body.String()
}
