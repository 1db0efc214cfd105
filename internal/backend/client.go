// Package backend is the HTTP client for the Jajanin API: donation checkout, payment status
// reconciliation, public config and overlay helpers. It performs no retries of its own.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jajanin-relay/internal/models"
	"jajanin-relay/internal/util"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1"

// Client talks to the backend REST endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client with a traced transport and a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
}

// NewClientWithHTTP creates a client around an existing http.Client.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		logger:  util.ComponentLogger("backend"),
	}
}

// BaseURL returns the backend root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is returned when the backend answers with a non-2xx status.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned HTTP %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned HTTP %d: %s", e.Operation, e.StatusCode, e.Message)
}

// envelope is the backend's standard response wrapper.
type envelope struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
	ClientCount int             `json:"client_count,omitempty"`
}

// LookupResult is the raw outcome of a status lookup.
type LookupResult struct {
	Code string
	Raw  json.RawMessage
}

// PublicConfig is the public platform configuration.
type PublicConfig struct {
	AdminFeePercent *float64 `json:"admin_fee_percent"`
}

// CreateDonation creates a donation and its payment session.
func (c *Client) CreateDonation(ctx context.Context, req *models.DonationRequest) (*models.DonationResponse, error) {
	ctx, span := util.StartSpan(ctx, "backend.CreateDonation")
	defer span.End()

	var resp models.DonationResponse
	if _, err := c.do(ctx, "create_donation", http.MethodPost, apiPrefix+"/donations", req, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" && !resp.IsRedirect() {
		return nil, fmt.Errorf("create_donation: response carries neither order token nor payment url")
	}
	return &resp, nil
}

// Lookup queries the payment status of an order. A pending order is not an error.
func (c *Client) Lookup(ctx context.Context, orderID string) (LookupResult, error) {
	ctx, span := util.StartSpan(ctx, "backend.Lookup")
	defer span.End()

	var data json.RawMessage
	path := apiPrefix + "/payment/status/" + url.PathEscape(orderID)
	if _, err := c.do(ctx, "lookup", http.MethodGet, path, nil, &data); err != nil {
		return LookupResult{}, err
	}

	var body struct {
		Status json.RawMessage `json:"status"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			return LookupResult{}, fmt.Errorf("lookup: failed to decode status: %w", err)
		}
	}

	return LookupResult{Code: normalizeCode(body.Status), Raw: data}, nil
}

// Cancel asks the backend to cancel a pending order.
func (c *Client) Cancel(ctx context.Context, merchantTradeNo, platformTradeNo string) error {
	ctx, span := util.StartSpan(ctx, "backend.Cancel")
	defer span.End()

	body := map[string]string{
		"merchant_trade_no": merchantTradeNo,
		"platform_trade_no": platformTradeNo,
	}
	_, err := c.do(ctx, "cancel", http.MethodPost, apiPrefix+"/payment/cancel", body, nil)
	return err
}

// FetchConfig returns the public platform configuration.
func (c *Client) FetchConfig(ctx context.Context) (PublicConfig, error) {
	ctx, span := util.StartSpan(ctx, "backend.FetchConfig")
	defer span.End()

	var cfg PublicConfig
	_, err := c.do(ctx, "fetch_config", http.MethodGet, apiPrefix+"/config", nil, &cfg)
	return cfg, err
}

// FetchAlertSettings returns a creator's overlay settings by stream key.
func (c *Client) FetchAlertSettings(ctx context.Context, streamKey string) (models.AlertSettings, error) {
	settings := models.DefaultAlertSettings()
	_, err := c.do(ctx, "fetch_alert_settings", http.MethodGet, "/overlay/settings/"+url.PathEscape(streamKey), nil, &settings)
	return settings, err
}

// TestAlert triggers a synthetic alert and returns how many stream clients were connected.
func (c *Client) TestAlert(ctx context.Context, streamKey string) (int, error) {
	env, err := c.do(ctx, "test_alert", http.MethodPost, "/overlay/test/"+url.PathEscape(streamKey), nil, nil)
	if err != nil {
		return 0, err
	}
	return env.ClientCount, nil
}

// Classify converts a backend status code into a domain status. Only 02 and 09 are terminal.
func Classify(code string) models.PaymentStatus {
	switch code {
	case models.StatusCodePaid:
		return models.PaymentStatusPaid
	case models.StatusCodeFailed:
		return models.PaymentStatusFailed
	default:
		return models.PaymentStatusPending
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) (*envelope, error) {
	start := time.Now()
	defer func() {
		util.BackendRequestLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, &APIError{Operation: op, StatusCode: resp.StatusCode}
			}
			return nil, fmt.Errorf("%s: failed to decode response: %w", op, err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("Backend call failed",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.String("error", env.Error))
		return nil, &APIError{Operation: op, StatusCode: resp.StatusCode, Message: env.Error}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("%s: failed to decode data: %w", op, err)
		}
	}

	return &env, nil
}

// normalizeCode accepts "02" as well as a bare 2.
func normalizeCode(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return fmt.Sprintf("%02d", n)
	}
	return string(raw)
}
