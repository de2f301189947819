package repo

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists pipeline output in a Postgres database via pgx.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres opens a connection pool with the desired search_path.
func NewPostgres(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		logger: logger.With("component", "repo_postgres"),
	}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunMigrations applies the postgres migration files in lexicographic order.
func (s *PostgresStore) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return applyMigrations(ctx, filesystem, "postgres", func(sql string) error {
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, sql)
			return err
		})
	})
}

// UpsertChatStats inserts or updates the daily chat aggregate keyed by date.
func (s *PostgresStore) UpsertChatStats(ctx context.Context, stats DailyChatStats) error {
	const q = `
INSERT INTO clinia_chat_stats (date, total_conversations, total_without_response, avg_wait_seconds, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (date) DO UPDATE SET
    total_conversations = EXCLUDED.total_conversations,
    total_without_response = EXCLUDED.total_without_response,
    avg_wait_seconds = EXCLUDED.avg_wait_seconds,
    updated_at = EXCLUDED.updated_at;
`
	if _, err := s.pool.Exec(ctx, q, stats.Date, stats.TotalConversations, stats.TotalWithoutResponse, stats.AvgWaitSeconds); err != nil {
		return fmt.Errorf("upsert chat stats: %w", err)
	}
	return nil
}

// ReplaceGroupSnapshots swaps the whole snapshot table for the provided set
// inside one transaction, so readers never observe the empty intermediate
// state and removed groups disappear.
func (s *PostgresStore) ReplaceGroupSnapshots(ctx context.Context, snapshots []GroupSnapshot) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM clinia_group_snapshots`); err != nil {
			return fmt.Errorf("clear group snapshots: %w", err)
		}
		const q = `
INSERT INTO clinia_group_snapshots (group_id, group_name, queue_size, avg_wait_seconds, updated_at)
VALUES ($1, $2, $3, $4, NOW());
`
		for _, snap := range snapshots {
			if _, err := tx.Exec(ctx, q, snap.GroupID, snap.GroupName, snap.QueueSize, snap.AvgWaitSeconds); err != nil {
				return fmt.Errorf("insert group snapshot %s: %w", snap.GroupID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace group snapshots: %w", err)
	}
	return nil
}

// UpsertAppointmentStats inserts or updates the daily appointment aggregate.
func (s *PostgresStore) UpsertAppointmentStats(ctx context.Context, stats DailyAppointmentStats) error {
	const q = `
INSERT INTO clinia_appointment_stats (date, total_appointments, bot_appointments, crc_appointments, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (date) DO UPDATE SET
    total_appointments = EXCLUDED.total_appointments,
    bot_appointments = EXCLUDED.bot_appointments,
    crc_appointments = EXCLUDED.crc_appointments,
    updated_at = EXCLUDED.updated_at;
`
	if _, err := s.pool.Exec(ctx, q, stats.Date, stats.TotalAppointments, stats.BotAppointments, stats.CRCAppointments); err != nil {
		return fmt.Errorf("upsert appointment stats: %w", err)
	}
	return nil
}

// EnsureFinancialSchema creates the financial table if missing and attempts
// the incremental column additions. A failure to add a column that already
// exists is expected on current schemas and swallowed.
func (s *PostgresStore) EnsureFinancialSchema(ctx context.Context) error {
	const create = `
CREATE TABLE IF NOT EXISTS feegow_appointments (
    appointment_id BIGINT PRIMARY KEY,
    date TEXT,
    status_id INTEGER,
    value DOUBLE PRECISION,
    specialty TEXT,
    professional_name TEXT,
    procedure_group TEXT,
    scheduled_by TEXT,
    unit_name TEXT,
    updated_at TIMESTAMPTZ
);
`
	if _, err := s.pool.Exec(ctx, create); err != nil {
		return fmt.Errorf("ensure financial table: %w", err)
	}
	for _, alter := range []string{
		`ALTER TABLE feegow_appointments ADD COLUMN scheduled_by TEXT`,
		`ALTER TABLE feegow_appointments ADD COLUMN unit_name TEXT`,
	} {
		if _, err := s.pool.Exec(ctx, alter); err != nil {
			if !isDuplicateColumn(err) {
				s.logger.Debug("schema migration step skipped", "error", err)
			}
		}
	}
	for _, index := range []string{
		`CREATE INDEX IF NOT EXISTS idx_feegow_date ON feegow_appointments(date)`,
		`CREATE INDEX IF NOT EXISTS idx_feegow_user ON feegow_appointments(scheduled_by)`,
	} {
		if _, err := s.pool.Exec(ctx, index); err != nil {
			return fmt.Errorf("ensure financial index: %w", err)
		}
	}
	return nil
}

// UpsertFinancialAppointment merges one financial record by appointment id.
// Date, specialty and professional are preserved on conflict so a later fetch
// that mis-parses them cannot overwrite the original categorization.
func (s *PostgresStore) UpsertFinancialAppointment(ctx context.Context, appt FinancialAppointment) error {
	const q = `
INSERT INTO feegow_appointments (
    appointment_id, date, status_id, value,
    specialty, professional_name, procedure_group,
    scheduled_by, unit_name, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
ON CONFLICT (appointment_id) DO UPDATE SET
    status_id = EXCLUDED.status_id,
    value = EXCLUDED.value,
    procedure_group = EXCLUDED.procedure_group,
    scheduled_by = EXCLUDED.scheduled_by,
    unit_name = EXCLUDED.unit_name,
    updated_at = EXCLUDED.updated_at;
`
	if _, err := s.pool.Exec(ctx, q,
		appt.AppointmentID,
		appt.Date,
		appt.StatusID,
		appt.Value,
		appt.Specialty,
		appt.Professional,
		appt.ProcedureGroup,
		appt.ScheduledBy,
		appt.UnitName,
	); err != nil {
		return fmt.Errorf("upsert financial appointment %d: %w", appt.AppointmentID, err)
	}
	return nil
}

// CountFinancialAppointments returns the number of reconciled records.
func (s *PostgresStore) CountFinancialAppointments(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM feegow_appointments`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count financial appointments: %w", err)
	}
	return count, nil
}

func isDuplicateColumn(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column")
}
