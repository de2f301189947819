package feegow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clinic-sync/internal/metrics"
)

var (
	// ErrInvalidToken indicates Feegow rejected the access token.
	ErrInvalidToken = errors.New("feegow invalid access token")
)

// Row is one record of the tabular financial report. Column names vary across
// vendor versions, so rows stay untyped until normalization.
type Row = map[string]any

// Client provides access to the Feegow financial report API.
type Client struct {
	logger      *slog.Logger
	baseURL     string
	accessToken string
	http        *http.Client
	metrics     *metrics.Metrics
}

// Config holds Feegow client configuration.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// New creates a new Feegow client.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.feegow.com/v1/api"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		logger:      logger.With("component", "feegow"),
		baseURL:     base,
		accessToken: cfg.AccessToken,
		http:        &http.Client{Timeout: timeout},
		metrics:     metricRegistry,
	}
}

// Report fetches the financial appointment report for a date window. Dates are
// sent in the vendor's DD-MM-YYYY convention.
func (c *Client) Report(ctx context.Context, start, end time.Time) ([]Row, error) {
	params := url.Values{}
	params.Set("data_start", start.Format("02-01-2006"))
	params.Set("data_end", end.Format("02-01-2006"))
	endpoint := "/financial/list-appointments?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-access-token", c.accessToken)

	startedAt := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.FeegowRequests.WithLabelValues("report", "error").Inc()
		}
		return nil, fmt.Errorf("feegow request: %w", err)
	}
	defer res.Body.Close()

	statusLabel := fmt.Sprintf("%d", res.StatusCode)
	if c.metrics != nil {
		c.metrics.FeegowRequests.WithLabelValues("report", statusLabel).Inc()
		c.metrics.FeegowLatency.WithLabelValues("report", statusLabel).Observe(time.Since(startedAt).Seconds())
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d", ErrInvalidToken, res.StatusCode)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feegow report error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	rows, err := parseReport(body)
	if err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return rows, nil
}

// parseReport accepts both a bare array and the {"content": [...]} envelope
// newer API versions wrap results in.
func parseReport(body []byte) ([]Row, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var direct []Row
	if err := json.Unmarshal(body, &direct); err == nil {
		return direct, nil
	}

	var envelope struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Content) == 0 || string(envelope.Content) == "null" {
		return nil, nil
	}
	var rows []Row
	if err := json.Unmarshal(envelope.Content, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
