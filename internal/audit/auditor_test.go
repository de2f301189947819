package audit

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"clinic-sync/internal/clinia"
)

type fakeChatAPI struct {
	pages     [][]clinia.ChatListing
	histories map[string][]clinia.ConversationRecord

	pagesRequested int
	listErrOnPage  int
	convErrPhones  map[string]bool
}

func (f *fakeChatAPI) ListChats(_ context.Context, page int) ([]clinia.ChatListing, error) {
	f.pagesRequested++
	if f.listErrOnPage > 0 && page == f.listErrOnPage {
		return nil, errors.New("listing unavailable")
	}
	if page > len(f.pages) {
		return nil, nil
	}
	return f.pages[page-1], nil
}

func (f *fakeChatAPI) Conversations(_ context.Context, phone string) ([]clinia.ConversationRecord, error) {
	if f.convErrPhones[phone] {
		return nil, errors.New("history unavailable")
	}
	return f.histories[phone], nil
}

func newTestAuditor(api ChatAPI, now time.Time) *Auditor {
	a := New(api, nil, nil, slog.Default(), time.Minute)
	a.now = func() time.Time { return now }
	return a
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }

func TestRunExcludesClosedChats(t *testing.T) {
	api := &fakeChatAPI{
		pages: [][]clinia.ChatListing{{
			{Phone: "5511000000001", Name: "Open", UnreadCount: intPtr(2), ConversationTimestamp: "2026-01-12T10:00:00.000Z"},
			{Phone: "5511000000002", Name: "Zombie", UnreadCount: intPtr(9), ConversationTimestamp: "2026-01-12T09:00:00.000Z"},
			{Phone: "5511000000003", Name: "Read", UnreadCount: intPtr(0)},
			{Phone: "5511000000004", Name: "NoUnreadField"},
		}},
		histories: map[string][]clinia.ConversationRecord{
			"5511000000001": {{ClosedAt: nil, CreatedAt: "2026-01-12T10:00:00Z"}},
			"5511000000002": {{ClosedAt: strPtr("2026-01-12T09:30:00Z"), CreatedAt: "2026-01-12T09:00:00Z"}},
		},
	}

	now := time.Date(2026, 1, 12, 10, 30, 0, 0, time.UTC)
	result, err := newTestAuditor(api, now).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Confirmed != 1 {
		t.Fatalf("expected 1 confirmed chat, got %d", result.Confirmed)
	}
	if math.Abs(result.AvgWaitMinutes-30) > 0.01 {
		t.Fatalf("expected wait of about 30 minutes, got %v", result.AvgWaitMinutes)
	}
}

func TestRunFailsClosedOnVerification(t *testing.T) {
	api := &fakeChatAPI{
		pages: [][]clinia.ChatListing{{
			{Phone: "err", UnreadCount: intPtr(1), ConversationTimestamp: "2026-01-12T10:00:00Z"},
			{Phone: "empty", UnreadCount: intPtr(1), ConversationTimestamp: "2026-01-12T10:00:00Z"},
		}},
		histories:     map[string][]clinia.ConversationRecord{"empty": {}},
		convErrPhones: map[string]bool{"err": true},
	}

	result, err := newTestAuditor(api, time.Now()).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Confirmed != 0 {
		t.Fatalf("verification failures must count as closed, got %d confirmed", result.Confirmed)
	}
	if result.AvgWaitMinutes != 0 {
		t.Fatalf("mean must be 0 when nothing is confirmed, got %v", result.AvgWaitMinutes)
	}
}

func TestRunStopsOnShortPage(t *testing.T) {
	full := make([]clinia.ChatListing, clinia.PageSize)
	short := make([]clinia.ChatListing, 3)
	api := &fakeChatAPI{pages: [][]clinia.ChatListing{full, short, full}}

	if _, err := newTestAuditor(api, time.Now()).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.pagesRequested != 2 {
		t.Fatalf("expected pagination to stop after the short page, requested %d pages", api.pagesRequested)
	}
}

func TestRunKeepsPartialAuditOnListingFailure(t *testing.T) {
	page := make([]clinia.ChatListing, clinia.PageSize)
	page[0] = clinia.ChatListing{Phone: "p1", UnreadCount: intPtr(1), ConversationTimestamp: "2026-01-12T10:00:00Z"}
	api := &fakeChatAPI{
		pages:         [][]clinia.ChatListing{page},
		histories:     map[string][]clinia.ConversationRecord{"p1": {{ClosedAt: nil, CreatedAt: "2026-01-12T10:00:00Z"}}},
		listErrOnPage: 2,
	}

	result, err := newTestAuditor(api, time.Date(2026, 1, 12, 10, 10, 0, 0, time.UTC)).Run(context.Background())
	if err != nil {
		t.Fatalf("a partial audit must not error: %v", err)
	}
	if result.Confirmed != 1 {
		t.Fatalf("expected the partial page to be kept, got %d confirmed", result.Confirmed)
	}
}

func TestRunUsesMaxCreatedAtWhenHistoryUnordered(t *testing.T) {
	api := &fakeChatAPI{
		pages: [][]clinia.ChatListing{{
			{Phone: "p1", UnreadCount: intPtr(1), ConversationTimestamp: "2026-01-12T08:00:00Z"},
		}},
		histories: map[string][]clinia.ConversationRecord{
			// Oldest-first ordering: the most recent entry is closed.
			"p1": {
				{ClosedAt: nil, CreatedAt: "2026-01-10T10:00:00Z"},
				{ClosedAt: strPtr("2026-01-12T09:00:00Z"), CreatedAt: "2026-01-12T08:00:00Z"},
			},
		},
	}

	result, err := newTestAuditor(api, time.Now()).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Confirmed != 0 {
		t.Fatalf("most recent entry is closed, expected 0 confirmed, got %d", result.Confirmed)
	}
}

func TestWaitMinutesDefaultsToZeroOnParseFailure(t *testing.T) {
	if got := waitMinutes("not a timestamp", time.Now()); got != 0 {
		t.Fatalf("expected 0 on parse failure, got %v", got)
	}
}
