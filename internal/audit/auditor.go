// Package audit implements the queue audit: confirming which listed chats are
// genuinely unresolved versus stale listing entries.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"clinic-sync/internal/cache"
	"clinic-sync/internal/clinia"
	"clinic-sync/internal/metrics"
	"clinic-sync/internal/normalize"
)

// ResultKey is the Redis key holding the latest audit result.
const ResultKey = "queue:latest"

// ChatAPI is the slice of the Clinia client the auditor needs.
type ChatAPI interface {
	ListChats(ctx context.Context, page int) ([]clinia.ChatListing, error)
	Conversations(ctx context.Context, phone string) ([]clinia.ConversationRecord, error)
}

// Result is the aggregate outcome of one audit run.
type Result struct {
	Confirmed      int       `json:"confirmed"`
	AvgWaitMinutes float64   `json:"avg_wait_minutes"`
	AuditedAt      time.Time `json:"audited_at"`
}

// Auditor pages through the chat listing and verifies each candidate against
// the conversation history before counting it.
type Auditor struct {
	api     ChatAPI
	cache   *cache.Redis
	metrics *metrics.Metrics
	logger  *slog.Logger

	resultTTL time.Duration
	now       func() time.Time
}

// New creates an Auditor. The cache may be nil when no Redis is configured.
func New(api ChatAPI, redis *cache.Redis, metricRegistry *metrics.Metrics, logger *slog.Logger, resultTTL time.Duration) *Auditor {
	if resultTTL <= 0 {
		resultTTL = 10 * time.Minute
	}
	return &Auditor{
		api:       api,
		cache:     redis,
		metrics:   metricRegistry,
		logger:    logger.With("component", "audit"),
		resultTTL: resultTTL,
		now:       time.Now,
	}
}

// Run executes one audit pass. A listing-page failure stops pagination and
// returns whatever was accumulated so far: a partial audit beats no audit.
// Per-chat verification failures only exclude that chat.
func (a *Auditor) Run(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID)
	logger.Info("queue audit started")

	now := a.now()
	var waits []float64

	for page := 1; ; page++ {
		chats, err := a.api.ListChats(ctx, page)
		if err != nil {
			logger.Warn("chat listing failed, keeping partial audit", "page", page, "error", err)
			if a.metrics != nil {
				a.metrics.Errors.WithLabelValues("audit").Inc()
			}
			break
		}
		if len(chats) == 0 {
			break
		}

		for _, chat := range chats {
			if chat.Unread() <= 0 {
				continue
			}
			if !a.confirmedOpen(ctx, logger, chat.Phone) {
				continue
			}
			wait := waitMinutes(chat.ConversationTimestamp, now)
			waits = append(waits, wait)
			logger.Debug("chat confirmed in queue", "phone", chat.Phone, "name", chat.Name, "wait_minutes", int(wait))
		}

		// A short page signals end-of-data.
		if len(chats) < clinia.PageSize {
			break
		}
	}

	result := Result{
		Confirmed: len(waits),
		AuditedAt: now,
	}
	if len(waits) > 0 {
		var total float64
		for _, w := range waits {
			total += w
		}
		result.AvgWaitMinutes = total / float64(len(waits))
	}

	a.publish(ctx, logger, result)
	logger.Info("queue audit finished", "confirmed", result.Confirmed, "avg_wait_minutes", result.AvgWaitMinutes)
	return result, nil
}

// confirmedOpen applies the golden rule: a chat is open if and only if its
// most recent conversation has no closing timestamp. Verification failures and
// empty histories count as closed, so a flaky endpoint can never overcount the
// queue.
func (a *Auditor) confirmedOpen(ctx context.Context, logger *slog.Logger, phone string) bool {
	records, err := a.api.Conversations(ctx, phone)
	if err != nil {
		logger.Warn("conversation verification failed, treating as closed", "phone", phone, "error", err)
		return false
	}
	if len(records) == 0 {
		return false
	}
	return mostRecent(records).ClosedAt == nil
}

// mostRecent selects the conversation with the maximum creation timestamp.
// The API is believed to return history most-recent-first, but that ordering
// is not a documented contract, so entries with parseable timestamps win over
// positional order.
func mostRecent(records []clinia.ConversationRecord) clinia.ConversationRecord {
	best := records[0]
	bestAt, bestOK := normalize.Timestamp(best.CreatedAt)
	for _, rec := range records[1:] {
		at, ok := normalize.Timestamp(rec.CreatedAt)
		if !ok {
			continue
		}
		if !bestOK || at.After(bestAt) {
			best = rec
			bestAt = at
			bestOK = true
		}
	}
	return best
}

// waitMinutes computes how long the chat has been waiting. Parse failures
// default to 0 rather than dropping the chat from the count.
func waitMinutes(raw string, now time.Time) float64 {
	at, ok := normalize.Timestamp(raw)
	if !ok {
		return 0
	}
	return now.Sub(at).Minutes()
}

func (a *Auditor) publish(ctx context.Context, logger *slog.Logger, result Result) {
	if a.metrics != nil {
		a.metrics.QueueConfirmed.Set(float64(result.Confirmed))
		a.metrics.QueueAvgWaitMins.Set(result.AvgWaitMinutes)
		a.metrics.PipelineRuns.WithLabelValues("audit", "ok").Inc()
	}
	if a.cache == nil {
		return
	}
	if err := a.cache.SetJSON(ctx, ResultKey, result, a.resultTTL); err != nil {
		logger.Warn("failed publishing audit result", "error", err)
	}
}
