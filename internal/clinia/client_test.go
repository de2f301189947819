package clinia

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		BaseURL:       server.URL,
		APIKey:        "test-key",
		SessionCookie: "session=abc",
	}, slog.Default(), nil)
}

func TestListChatsSendsAPIKey(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("api_key"); got != "test-key" {
			t.Errorf("expected api_key header, got %q", got)
		}
		if got := r.URL.Query().Get("page"); got != "3" {
			t.Errorf("expected page=3, got %q", got)
		}
		w.Write([]byte(`{"chats":[{"phone":"5511999","name":"Maria","unread_count":2,"conversation_timestamp":"2026-01-12T10:00:00.000Z"}]}`))
	}))

	chats, err := client.ListChats(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(chats))
	}
	if chats[0].Phone != "5511999" || chats[0].Unread() != 2 {
		t.Fatalf("unexpected chat: %+v", chats[0])
	}
}

func TestUnreadDefaultsToZero(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chats":[{"phone":"5511999","name":"Maria"}]}`))
	}))

	chats, err := client.ListChats(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chats[0].Unread() != 0 {
		t.Fatalf("expected absent unread_count to default to 0, got %d", chats[0].Unread())
	}
}

func TestConversationsNullClosedAt(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"conversations":[{"closed_at":null,"created_at":"2026-01-12T10:00:00Z"},{"closed_at":"2026-01-11T08:00:00Z","created_at":"2026-01-11T07:00:00Z"}]}`))
	}))

	records, err := client.Conversations(context.Background(), "5511999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ClosedAt != nil {
		t.Fatal("expected first record to be open")
	}
	if records[1].ClosedAt == nil {
		t.Fatal("expected second record to be closed")
	}
}

func TestSessionExpiredSentinel(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		_, err := client.GroupChart(context.Background(), time.Now(), time.Now())
		if !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("status %d: expected ErrSessionExpired, got %v", status, err)
		}
	}
}

func TestGroupChartSendsCookieAndWindow(t *testing.T) {
	start := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 12, 23, 59, 59, 999000000, time.UTC)

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Cookie"); got != "session=abc" {
			t.Errorf("expected session cookie, got %q", got)
		}
		q := r.URL.Query()
		if q.Get("type") != "specific" {
			t.Errorf("expected type=specific, got %q", q.Get("type"))
		}
		if q.Get("startDate") != "2026-01-12T00:00:00.000Z" {
			t.Errorf("unexpected startDate %q", q.Get("startDate"))
		}
		if q.Get("endDate") != "2026-01-12T23:59:59.999Z" {
			t.Errorf("unexpected endDate %q", q.Get("endDate"))
		}
		w.Write([]byte(`{"groups":[{"group_id":"G1","group_name":"Clinic A","number_of_group_conversations":10,"number_of_without_responses":2,"avg_waiting_time":120}]}`))
	}))

	chart, err := client.GroupChart(context.Background(), start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chart.Groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(chart.Groups))
	}
	g := chart.Groups[0]
	if g.GroupID != "G1" || g.Conversations != 10 || g.WithoutResponses != 2 || g.Wait() != 120 {
		t.Fatalf("unexpected group: %+v", g)
	}
}

func TestAppointmentStatsCurrentPeriod(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current":{"appointmentsTotal":12,"appointmentsCreatedByBot":9},"last":{"appointmentsTotal":40}}`))
	}))

	stats, err := client.AppointmentStats(context.Background(), time.Now(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Current.Total != 12 || stats.Current.CreatedByBot != 9 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestTransportErrorIsNotAuthError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	_, err := client.ListChats(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrSessionExpired) {
		t.Fatal("a 500 must not classify as an expired session")
	}
}
