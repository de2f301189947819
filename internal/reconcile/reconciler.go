// Package reconcile merges the Feegow financial report into the local store:
// status filtering, field normalization, idempotent upserts.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinic-sync/internal/feegow"
	"clinic-sync/internal/metrics"
	"clinic-sync/internal/normalize"
	"clinic-sync/internal/repo"
)

// validStatuses is the closed allow-list of actionable appointment statuses.
// Everything else (cancellations and the like) is dropped, not stored.
var validStatuses = map[int]bool{
	1: true, 2: true, 3: true, 4: true, 6: true,
	7: true, 11: true, 15: true, 16: true, 22: true,
}

// ReportAPI is the slice of the Feegow client the reconciler needs.
type ReportAPI interface {
	Report(ctx context.Context, start, end time.Time) ([]feegow.Row, error)
}

// Store is the slice of the repository the reconciler writes to.
type Store interface {
	EnsureFinancialSchema(ctx context.Context) error
	UpsertFinancialAppointment(ctx context.Context, appt repo.FinancialAppointment) error
}

// Summary reports what a reconciliation run did.
type Summary struct {
	Fetched int
	Saved   int
	Skipped int
	Errored int
}

// Reconciler pulls a window of financial records and upserts them by
// appointment id.
type Reconciler struct {
	api     ReportAPI
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	now func() time.Time
}

// New creates a Reconciler.
func New(api ReportAPI, store Store, metricRegistry *metrics.Metrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		api:     api,
		store:   store,
		metrics: metricRegistry,
		logger:  logger.With("component", "reconcile"),
		now:     time.Now,
	}
}

// RunWindow reconciles records between start and end. Per-row failures are
// isolated and counted; fetch and schema failures fail the run.
func (r *Reconciler) RunWindow(ctx context.Context, start, end time.Time) (Summary, error) {
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)
	logger.Info("financial reconciliation started",
		"start", start.Format("02-01-2006"), "end", end.Format("02-01-2006"))

	var summary Summary

	rows, err := r.api.Report(ctx, start, end)
	if err != nil {
		if errors.Is(err, feegow.ErrInvalidToken) {
			logger.Error("access token rejected, refresh the Feegow credential", "error", err)
		}
		r.countRun("error")
		return summary, fmt.Errorf("fetch financial report: %w", err)
	}
	summary.Fetched = len(rows)
	if len(rows) == 0 {
		logger.Warn("no financial data returned")
		r.countRun("ok")
		return summary, nil
	}

	if err := r.store.EnsureFinancialSchema(ctx); err != nil {
		r.countRun("error")
		return summary, fmt.Errorf("ensure financial schema: %w", err)
	}

	now := r.now()
	for _, row := range rows {
		appt, ok := NormalizeRow(row, now)
		if !ok {
			summary.Skipped++
			continue
		}
		if err := r.store.UpsertFinancialAppointment(ctx, appt); err != nil {
			summary.Errored++
			logger.Warn("row upsert failed", "appointment_id", appt.AppointmentID, "error", err)
			continue
		}
		summary.Saved++
	}

	if r.metrics != nil {
		r.metrics.RowsSaved.WithLabelValues("reconcile").Add(float64(summary.Saved))
		r.metrics.RowsErrored.WithLabelValues("reconcile").Add(float64(summary.Errored))
	}
	r.countRun("ok")
	logger.Info("financial reconciliation finished",
		"fetched", summary.Fetched, "saved", summary.Saved,
		"skipped", summary.Skipped, "errored", summary.Errored)
	return summary, nil
}

// Run reconciles the default sliding window around now.
func (r *Reconciler) Run(ctx context.Context, past, future time.Duration) (Summary, error) {
	if past <= 0 {
		past = 30 * 24 * time.Hour
	}
	if future <= 0 {
		future = 30 * 24 * time.Hour
	}
	now := r.now()
	return r.RunWindow(ctx, now.Add(-past), now.Add(future))
}

func (r *Reconciler) countRun(outcome string) {
	if r.metrics != nil {
		r.metrics.PipelineRuns.WithLabelValues("reconcile", outcome).Inc()
	}
}

// NormalizeRow turns one loosely-typed report row into a canonical record.
// The boolean is false when the row must be skipped: status outside the
// allow-list, or no derivable positive appointment id.
func NormalizeRow(row feegow.Row, now time.Time) (repo.FinancialAppointment, bool) {
	status := normalize.FirstInt(row, "status_id", "status")
	if !validStatuses[status] {
		return repo.FinancialAppointment{}, false
	}

	id := int64(normalize.FirstFloat(row, "agendamento_id", "id"))
	if id <= 0 {
		return repo.FinancialAppointment{}, false
	}

	return repo.FinancialAppointment{
		AppointmentID:  id,
		Date:           normalize.Date(normalize.FirstString(row, "data", "data_agendamento"), now),
		StatusID:       status,
		Value:          normalize.Currency(firstPresent(row, "valor", "valor_total_agendamento")),
		Specialty:      normalize.FirstStringOr(row, "Geral", "especialidade", "nome_especialidade"),
		Professional:   normalize.FirstStringOr(row, "Desconhecido", "nome_profissional", "profissional"),
		ProcedureGroup: normalize.FirstStringOr(row, "Geral", "procedure_group", "grupo_procedimento"),
		ScheduledBy:    normalize.FirstStringOr(row, "Sistema", "agendado_por"),
		UnitName:       normalize.FirstStringOr(row, "Matriz", "nome_fantasia"),
		UpdatedAt:      now,
	}, true
}

// firstPresent returns the first usable candidate value without numeric
// coercion, so the currency normalizer sees the vendor's raw representation.
// Nil and blank values fall through to the next candidate.
func firstPresent(row feegow.Row, keys ...string) any {
	for _, key := range keys {
		val, ok := row[key]
		if !ok || val == nil {
			continue
		}
		if str, isStr := val.(string); isStr && strings.TrimSpace(str) == "" {
			continue
		}
		return val
	}
	return nil
}
