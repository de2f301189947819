// Package chatsync synchronizes the dashboard chat and appointment statistics
// for the current day into the local store.
package chatsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"clinic-sync/internal/cache"
	"clinic-sync/internal/clinia"
	"clinic-sync/internal/metrics"
	"clinic-sync/internal/repo"
)

const chartCacheKey = "clinia:group_chart"

// StatsAPI is the slice of the Clinia client the synchronizer needs.
type StatsAPI interface {
	GroupChart(ctx context.Context, start, end time.Time) (*clinia.GroupChart, error)
	AppointmentStats(ctx context.Context, start, end time.Time) (*clinia.AppointmentStats, error)
}

// Store is the slice of the repository the synchronizer writes to.
type Store interface {
	UpsertChatStats(ctx context.Context, stats repo.DailyChatStats) error
	ReplaceGroupSnapshots(ctx context.Context, snapshots []repo.GroupSnapshot) error
	UpsertAppointmentStats(ctx context.Context, stats repo.DailyAppointmentStats) error
}

// Syncer fetches today's dashboard statistics and persists them.
type Syncer struct {
	api     StatsAPI
	store   Store
	cache   *cache.Redis
	metrics *metrics.Metrics
	logger  *slog.Logger

	now func() time.Time
}

// New creates a Syncer. The cache may be nil.
func New(api StatsAPI, store Store, redis *cache.Redis, metricRegistry *metrics.Metrics, logger *slog.Logger) *Syncer {
	return &Syncer{
		api:     api,
		store:   store,
		cache:   redis,
		metrics: metricRegistry,
		logger:  logger.With("component", "chatsync"),
		now:     time.Now,
	}
}

// Run synchronizes today's chat and appointment statistics. The two sources
// are independent: a failure on one is logged and skips only that source's
// persistence. Persistence failures are returned and fail the run.
func (s *Syncer) Run(ctx context.Context) error {
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)

	now := s.now()
	start, end := dayBounds(now)
	today := now.Format("2006-01-02")
	logger.Info("chat synchronization started", "date", today)

	var firstErr error

	if err := s.syncChats(ctx, logger, start, end, today); err != nil {
		firstErr = err
	}
	if err := s.syncAppointments(ctx, logger, start, end, today); err != nil && firstErr == nil {
		firstErr = err
	}

	if s.metrics != nil {
		outcome := "ok"
		if firstErr != nil {
			outcome = "error"
		}
		s.metrics.PipelineRuns.WithLabelValues("chatsync", outcome).Inc()
	}
	return firstErr
}

func (s *Syncer) syncChats(ctx context.Context, logger *slog.Logger, start, end time.Time, today string) error {
	chart, err := s.api.GroupChart(ctx, start, end)
	if err != nil {
		s.logFetchFailure(logger, "group chart", err)
		return nil
	}

	snapshots, aggregate := buildSnapshots(chart.Groups, today, s.now())

	if err := s.store.ReplaceGroupSnapshots(ctx, snapshots); err != nil {
		return err
	}
	if err := s.store.UpsertChatStats(ctx, aggregate); err != nil {
		return err
	}

	if s.cache != nil {
		if cacheErr := s.cache.SetJSON(ctx, chartCacheKey, chart, time.Minute); cacheErr != nil {
			logger.Warn("failed caching group chart", "error", cacheErr)
		}
	}
	if s.metrics != nil {
		s.metrics.RowsSaved.WithLabelValues("chatsync").Add(float64(len(snapshots) + 1))
	}
	logger.Info("chat statistics updated", "groups", len(snapshots),
		"total_conversations", aggregate.TotalConversations,
		"total_without_response", aggregate.TotalWithoutResponse)
	return nil
}

func (s *Syncer) syncAppointments(ctx context.Context, logger *slog.Logger, start, end time.Time, today string) error {
	stats, err := s.api.AppointmentStats(ctx, start, end)
	if err != nil {
		s.logFetchFailure(logger, "appointment statistics", err)
		return nil
	}

	row := buildAppointmentStats(stats.Current, today)
	if err := s.store.UpsertAppointmentStats(ctx, row); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RowsSaved.WithLabelValues("chatsync").Inc()
	}
	logger.Info("appointment statistics updated",
		"total", row.TotalAppointments, "bot", row.BotAppointments, "crc", row.CRCAppointments)
	return nil
}

// logFetchFailure distinguishes an expired session, which needs a manual
// cookie refresh, from ordinary transport failures.
func (s *Syncer) logFetchFailure(logger *slog.Logger, label string, err error) {
	if errors.Is(err, clinia.ErrSessionExpired) {
		logger.Error("session expired, refresh the dashboard cookie", "source", label, "error", err)
	} else {
		logger.Warn("fetch failed, skipping source this run", "source", label, "error", err)
	}
	if s.metrics != nil {
		s.metrics.Errors.WithLabelValues("chatsync").Inc()
	}
}

// buildSnapshots converts the group chart into snapshot rows plus the daily
// aggregate. The aggregate wait average only counts groups that reported a
// wait greater than zero, so silent groups do not dilute it.
func buildSnapshots(groups []clinia.GroupStat, today string, now time.Time) ([]repo.GroupSnapshot, repo.DailyChatStats) {
	snapshots := make([]repo.GroupSnapshot, 0, len(groups))

	var totalConv, totalNoResp int
	var totalWait float64
	var groupsWithWait int

	for _, group := range groups {
		name := group.GroupName
		if name == "" {
			name = "Unknown Group"
		}
		wait := group.Wait()

		snapshots = append(snapshots, repo.GroupSnapshot{
			GroupID:        group.GroupID,
			GroupName:      name,
			QueueSize:      group.WithoutResponses,
			AvgWaitSeconds: int(wait),
			UpdatedAt:      now,
		})

		totalConv += group.Conversations
		totalNoResp += group.WithoutResponses
		if wait > 0 {
			totalWait += wait
			groupsWithWait++
		}
	}

	avgWait := 0
	if groupsWithWait > 0 {
		avgWait = int(totalWait / float64(groupsWithWait))
	}

	return snapshots, repo.DailyChatStats{
		Date:                 today,
		TotalConversations:   totalConv,
		TotalWithoutResponse: totalNoResp,
		AvgWaitSeconds:       avgWait,
		UpdatedAt:            now,
	}
}

// buildAppointmentStats derives the human-created count as total minus bot,
// clamped at zero to defend against inconsistent source data.
func buildAppointmentStats(current clinia.AppointmentPeriod, today string) repo.DailyAppointmentStats {
	crc := current.Total - current.CreatedByBot
	if crc < 0 {
		crc = 0
	}
	return repo.DailyAppointmentStats{
		Date:              today,
		TotalAppointments: current.Total,
		BotAppointments:   current.CreatedByBot,
		CRCAppointments:   crc,
	}
}

// dayBounds returns today's window in the API's convention: midnight to the
// last millisecond of the day, UTC markers included.
func dayBounds(now time.Time) (time.Time, time.Time) {
	year, month, day := now.Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, month, day, 23, 59, 59, 999000000, time.UTC)
	return start, end
}
