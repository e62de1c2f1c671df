// Package telnyx integrates with the Telnyx Programmable Fax API: outbound
// submission and cancel calls, webhook payload normalization, and webhook
// signature verification.
package telnyx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openfax/faxd/internal/core"
	"github.com/openfax/faxd/internal/domain/model"
	apperrors "github.com/openfax/faxd/internal/errors"
)

const defaultBaseURL = "https://api.telnyx.com/v2"

// ProviderConfig captures the subset of Telnyx API behaviour we need.
type ProviderConfig struct {
	APIKey       string
	ConnectionID string
	FromNumber   string
	BaseURL      string
	Quality      string
	Timeout      time.Duration
	// MockMode short-circuits all remote calls with synthetic accepted
	// outcomes. Used in development and tests.
	MockMode bool
	Client   *http.Client
	Logger   *slog.Logger
}

// Provider submits and cancels faxes via the Telnyx REST API.
type Provider struct {
	apiKey       string
	connectionID string
	fromNumber   string
	baseURL      string
	quality      string
	mockMode     bool
	client       *http.Client
	logger       *slog.Logger
}

// NewProvider builds a Telnyx provider client. In live mode the API key,
// connection id, and from number are all required.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if !cfg.MockMode {
		if strings.TrimSpace(cfg.APIKey) == "" ||
			strings.TrimSpace(cfg.ConnectionID) == "" ||
			strings.TrimSpace(cfg.FromNumber) == "" {
			return nil, errors.New(
				"telnyx live mode requires api key, connection id, and from number")
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	quality := strings.TrimSpace(cfg.Quality)
	if quality == "" {
		quality = "high"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		apiKey:       cfg.APIKey,
		connectionID: cfg.ConnectionID,
		fromNumber:   cfg.FromNumber,
		baseURL:      baseURL,
		quality:      quality,
		mockMode:     cfg.MockMode,
		client:       hc,
		logger:       logger.With("component", "telnyx_provider"),
	}, nil
}

// Submit sends the fax job to Telnyx. Remote rejections and transport
// failures come back as an unaccepted outcome with a reason, not an error, so
// the caller records them as a regular submission result.
func (p *Provider) Submit(ctx context.Context, params core.SubmitFaxParams) (*model.SubmissionOutcome, error) {
	if p.mockMode {
		p.logger.InfoContext(ctx, "mock fax submission", "destination", params.DestinationFax)
		return &model.SubmissionOutcome{
			Accepted:       true,
			ProviderJobID:  "mock_fax_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20],
			ProviderStatus: "queued",
		}, nil
	}

	if !strings.HasPrefix(params.MediaURL, "https://") {
		return nil, apperrors.Provider("live fax submission requires an https media url")
	}

	payload := map[string]any{
		"connection_id": p.connectionID,
		"media_url":     params.MediaURL,
		"from":          p.fromNumber,
		"to":            params.DestinationFax,
		"quality":       p.quality,
	}

	var resp faxResponse
	err := p.post(ctx, p.baseURL+"/faxes", payload, &resp)
	if err != nil {
		p.logger.WarnContext(ctx, "fax submission rejected",
			"destination", params.DestinationFax, "err", err)
		return &model.SubmissionOutcome{
			Accepted:      false,
			FailureReason: err.Error(),
		}, nil
	}

	if resp.Data.ID == "" {
		return &model.SubmissionOutcome{
			Accepted:      false,
			FailureReason: "provider response missing fax id",
		}, nil
	}

	status := resp.Data.Status
	if status == "" {
		status = "queued"
	}

	return &model.SubmissionOutcome{
		Accepted:       true,
		ProviderJobID:  resp.Data.ID,
		ProviderStatus: status,
	}, nil
}

// RequestCancel asks Telnyx to abort an in-flight fax. Telnyx acknowledges
// with result "ok"; anything it reports back is surfaced as the provider
// status.
func (p *Provider) RequestCancel(ctx context.Context, providerJobID string) (*model.CancelOutcome, error) {
	if providerJobID == "" {
		return nil, apperrors.Provider("missing provider fax id for cancel")
	}

	if p.mockMode {
		p.logger.InfoContext(ctx, "mock fax cancel", "provider_job_id", providerJobID)
		return &model.CancelOutcome{Acknowledged: true, ProviderStatus: "canceled"}, nil
	}

	var resp cancelResponse
	err := p.post(ctx, p.baseURL+"/faxes/"+providerJobID+"/actions/cancel", nil, &resp)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeProvider,
			"cancel request for fax %s failed", providerJobID)
	}

	result := strings.ToLower(strings.TrimSpace(resp.Data.Result))
	if result == "ok" || result == "" {
		return &model.CancelOutcome{Acknowledged: true, ProviderStatus: "cancel_requested"}, nil
	}

	return &model.CancelOutcome{Acknowledged: true, ProviderStatus: result}, nil
}

type faxResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

type cancelResponse struct {
	Data struct {
		Result string `json:"result"`
	} `json:"data"`
}

func (p *Provider) post(ctx context.Context, url string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode telnyx payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("create telnyx request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("telnyx request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return p.handleErrorResponse(resp)
	}

	respBody, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("read telnyx response: %w", readErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close response body: %w", closeErr)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode telnyx response: %w", err)
	}
	return nil
}

func (p *Provider) handleErrorResponse(resp *http.Response) error {
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 512))
	closeErr := resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("telnyx %s: unreadable response: %w", resp.Status, readErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close response body: %w", closeErr)
	}
	return fmt.Errorf("telnyx %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
}
