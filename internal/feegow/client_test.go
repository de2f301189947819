package feegow

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
		BaseURL:     server.URL,
		AccessToken: "token-123",
	}, slog.Default(), nil)
}

func TestReportSendsTokenAndWindow(t *testing.T) {
	start := time.Date(2025, 12, 16, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-access-token"); got != "token-123" {
			t.Errorf("expected access token header, got %q", got)
		}
		q := r.URL.Query()
		if q.Get("data_start") != "16-12-2025" {
			t.Errorf("expected DD-MM-YYYY start, got %q", q.Get("data_start"))
		}
		if q.Get("data_end") != "14-02-2026" {
			t.Errorf("expected DD-MM-YYYY end, got %q", q.Get("data_end"))
		}
		w.Write([]byte(`[{"agendamento_id":1,"status_id":"1","valor":"R$ 100,00"}]`))
	}))

	rows, err := client.Report(context.Background(), start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["valor"] != "R$ 100,00" {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestReportContentEnvelope(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"id":7},{"id":8}]}`))
	}))

	rows, err := client.Report(context.Background(), time.Now(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows from envelope, got %d", len(rows))
	}
}

func TestReportEmptyBodies(t *testing.T) {
	for _, body := range []string{"null", "[]", `{"content":null}`} {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		rows, err := client.Report(context.Background(), time.Now(), time.Now())
		if err != nil {
			t.Fatalf("body %q: unexpected error: %v", body, err)
		}
		if len(rows) != 0 {
			t.Fatalf("body %q: expected no rows, got %d", body, len(rows))
		}
	}
}

func TestReportInvalidToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	_, err := client.Report(context.Background(), time.Now(), time.Now())
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
