package clinia

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

// PageSize is the fixed page size of the chat listing endpoint. A page with
// fewer entries signals end-of-data.
const PageSize = 50

var (
	// ErrSessionExpired indicates Clinia rejected the credentials (401/403).
	// The session cookie is captured manually, so this is surfaced distinctly
	// to prompt a credential refresh instead of a silent retry.
	ErrSessionExpired = errors.New("clinia session expired")
)

// Client provides typed access to the Clinia dashboard and v1 APIs.
//
// Two credential modes coexist: the v1 chat endpoints authenticate with a
// static api_key header, while the dashboard statistics endpoints ride on a
// browser session cookie captured externally.
type Client struct {
	logger        *slog.Logger
	baseURL       string
	apiKey        string
	sessionCookie string
	http          *http.Client
	metrics       *metrics.Metrics
}

// Config holds Clinia client configuration.
type Config struct {
	BaseURL       string
	APIKey        string
	SessionCookie string
	Timeout       time.Duration
}

// New creates a new Clinia client.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://dashboard.clinia.io"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		logger:        logger.With("component", "clinia"),
		baseURL:       base,
		apiKey:        cfg.APIKey,
		sessionCookie: cfg.SessionCookie,
		http:          &http.Client{Timeout: timeout},
		metrics:       metricRegistry,
	}
}

// ChatListing is one row of the paginated chat listing.
type ChatListing struct {
	Phone                 string `json:"phone"`
	Name                  string `json:"name"`
	UnreadCount           *int   `json:"unread_count"`
	ConversationTimestamp string `json:"conversation_timestamp"`
}

// Unread returns the unread count, defaulting to 0 when absent.
func (c ChatListing) Unread() int {
	if c.UnreadCount == nil {
		return 0
	}
	return *c.UnreadCount
}

type chatListResponse struct {
	Chats []ChatListing `json:"chats"`
}

// ListChats fetches one page of the chat listing (v1 API, api_key auth).
func (c *Client) ListChats(ctx context.Context, page int) ([]ChatListing, error) {
	endpoint := fmt.Sprintf("/api/clinia/v1/chats?page=%d", page)
	var resp chatListResponse
	if err := c.get(ctx, "chats", endpoint, authAPIKey, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// ConversationRecord is one entry of a phone's conversation history. A nil
// ClosedAt means the conversation is still open.
type ConversationRecord struct {
	ClosedAt  *string `json:"closed_at"`
	CreatedAt string  `json:"created_at"`
}

type conversationsResponse struct {
	Conversations []ConversationRecord `json:"conversations"`
}

// Conversations fetches the conversation history for a phone (v1 API).
func (c *Client) Conversations(ctx context.Context, phone string) ([]ConversationRecord, error) {
	endpoint := "/api/clinia/v1/chats/phone/" + url.PathEscape(phone) + "/conversations"
	var resp conversationsResponse
	if err := c.get(ctx, "conversations", endpoint, authAPIKey, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// GroupStat carries per-group chat statistics from the dashboard chart.
type GroupStat struct {
	GroupID          string   `json:"group_id"`
	GroupName        string   `json:"group_name"`
	Conversations    int      `json:"number_of_group_conversations"`
	WithoutResponses int      `json:"number_of_without_responses"`
	AvgWaitingTime   *float64 `json:"avg_waiting_time"`
}

// Wait returns the average waiting time, defaulting to 0 when null.
func (g GroupStat) Wait() float64 {
	if g.AvgWaitingTime == nil {
		return 0
	}
	return *g.AvgWaitingTime
}

// GroupChart is the dashboard per-group statistics response.
type GroupChart struct {
	Groups []GroupStat `json:"groups"`
}

// GroupChart fetches per-group chat statistics for a window (session cookie auth).
func (c *Client) GroupChart(ctx context.Context, start, end time.Time) (*GroupChart, error) {
	endpoint := "/api/statistics/group/chart?" + windowParams(start, end)
	var resp GroupChart
	if err := c.get(ctx, "group_chart", endpoint, authCookie, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AppointmentPeriod holds totals for one statistics period.
type AppointmentPeriod struct {
	Total        int `json:"appointmentsTotal"`
	CreatedByBot int `json:"appointmentsCreatedByBot"`
}

// AppointmentStats is the dashboard appointment statistics response. Only the
// current period is consumed; the comparison period is ignored.
type AppointmentStats struct {
	Current AppointmentPeriod `json:"current"`
}

// AppointmentStats fetches appointment statistics for a window (session cookie auth).
func (c *Client) AppointmentStats(ctx context.Context, start, end time.Time) (*AppointmentStats, error) {
	endpoint := "/api/statistics/appointments?" + windowParams(start, end)
	var resp AppointmentStats
	if err := c.get(ctx, "appointments", endpoint, authCookie, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func windowParams(start, end time.Time) string {
	params := url.Values{}
	params.Set("type", "specific")
	params.Set("startDate", start.UTC().Format("2006-01-02T15:04:05.000Z"))
	params.Set("endDate", end.UTC().Format("2006-01-02T15:04:05.000Z"))
	return params.Encode()
}

type authMode int

const (
	authAPIKey authMode = iota
	authCookie
)

func (c *Client) get(ctx context.Context, label, endpoint string, mode authMode, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "clinic-sync/clinia-client")
	switch mode {
	case authAPIKey:
		req.Header.Set("api_key", c.apiKey)
	case authCookie:
		req.Header.Set("Cookie", c.sessionCookie)
		req.Header.Set("Referer", c.baseURL+"/statistics")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CliniaRequests.WithLabelValues(label, "error").Inc()
		}
		return fmt.Errorf("clinia request: %w", err)
	}
	defer res.Body.Close()

	statusLabel := fmt.Sprintf("%d", res.StatusCode)
	if c.metrics != nil {
		c.metrics.CliniaRequests.WithLabelValues(label, statusLabel).Inc()
		c.metrics.CliniaLatency.WithLabelValues(label, statusLabel).Observe(time.Since(start).Seconds())
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s returned %d", ErrSessionExpired, label, res.StatusCode)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("clinia %s error: status=%d body=%s", label, res.StatusCode, strings.TrimSpace(string(body)))
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s response: %w", label, err)
	}
	return nil
}
