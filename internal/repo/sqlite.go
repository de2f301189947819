package repo

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists pipeline output in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens the SQLite database at the given path. WAL mode and a busy
// timeout keep concurrent worker runs from tripping over each other.
func NewSQLite(ctx context.Context, databasePath string, logger *slog.Logger) (*SQLiteStore, error) {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is empty")
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn = fmt.Sprintf("%s%s_pragma=busy_timeout=10000&_pragma=journal_mode=WAL", dsn, sep)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "repo_sqlite"),
	}, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// Ping ensures the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunMigrations applies the sqlite migration files in lexicographic order.
func (s *SQLiteStore) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return applyMigrations(ctx, filesystem, "sqlite", func(sqlText string) error {
		_, err := s.db.ExecContext(ctx, sqlText)
		return err
	})
}

// UpsertChatStats inserts or updates the daily chat aggregate keyed by date.
func (s *SQLiteStore) UpsertChatStats(ctx context.Context, stats DailyChatStats) error {
	const q = `
INSERT INTO clinia_chat_stats (date, total_conversations, total_without_response, avg_wait_seconds, updated_at)
VALUES (?, ?, ?, ?, datetime('now'))
ON CONFLICT (date) DO UPDATE SET
    total_conversations = excluded.total_conversations,
    total_without_response = excluded.total_without_response,
    avg_wait_seconds = excluded.avg_wait_seconds,
    updated_at = excluded.updated_at;
`
	if _, err := s.db.ExecContext(ctx, q, stats.Date, stats.TotalConversations, stats.TotalWithoutResponse, stats.AvgWaitSeconds); err != nil {
		return fmt.Errorf("upsert chat stats: %w", err)
	}
	return nil
}

// ReplaceGroupSnapshots swaps the whole snapshot table for the provided set
// inside one transaction.
func (s *SQLiteStore) ReplaceGroupSnapshots(ctx context.Context, snapshots []GroupSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace group snapshots: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM clinia_group_snapshots`); err != nil {
		return fmt.Errorf("clear group snapshots: %w", err)
	}
	const q = `
INSERT INTO clinia_group_snapshots (group_id, group_name, queue_size, avg_wait_seconds, updated_at)
VALUES (?, ?, ?, ?, datetime('now'));
`
	for _, snap := range snapshots {
		if _, err := tx.ExecContext(ctx, q, snap.GroupID, snap.GroupName, snap.QueueSize, snap.AvgWaitSeconds); err != nil {
			return fmt.Errorf("insert group snapshot %s: %w", snap.GroupID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit group snapshots: %w", err)
	}
	return nil
}

// UpsertAppointmentStats inserts or updates the daily appointment aggregate.
func (s *SQLiteStore) UpsertAppointmentStats(ctx context.Context, stats DailyAppointmentStats) error {
	const q = `
INSERT INTO clinia_appointment_stats (date, total_appointments, bot_appointments, crc_appointments, updated_at)
VALUES (?, ?, ?, ?, datetime('now'))
ON CONFLICT (date) DO UPDATE SET
    total_appointments = excluded.total_appointments,
    bot_appointments = excluded.bot_appointments,
    crc_appointments = excluded.crc_appointments,
    updated_at = excluded.updated_at;
`
	if _, err := s.db.ExecContext(ctx, q, stats.Date, stats.TotalAppointments, stats.BotAppointments, stats.CRCAppointments); err != nil {
		return fmt.Errorf("upsert appointment stats: %w", err)
	}
	return nil
}

// EnsureFinancialSchema creates the financial table if missing and attempts
// the incremental column additions for databases created before those columns
// existed. SQLite has no ADD COLUMN IF NOT EXISTS, so the duplicate-column
// error is expected and swallowed.
func (s *SQLiteStore) EnsureFinancialSchema(ctx context.Context) error {
	const create = `
CREATE TABLE IF NOT EXISTS feegow_appointments (
    appointment_id INTEGER PRIMARY KEY,
    date TEXT,
    status_id INTEGER,
    value REAL,
    specialty TEXT,
    professional_name TEXT,
    procedure_group TEXT,
    scheduled_by TEXT,
    unit_name TEXT,
    updated_at TEXT
);
`
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("ensure financial table: %w", err)
	}
	for _, alter := range []string{
		`ALTER TABLE feegow_appointments ADD COLUMN scheduled_by TEXT`,
		`ALTER TABLE feegow_appointments ADD COLUMN unit_name TEXT`,
	} {
		if _, err := s.db.ExecContext(ctx, alter); err != nil {
			if !isDuplicateColumn(err) {
				s.logger.Debug("schema migration step skipped", "error", err)
			}
		}
	}
	for _, index := range []string{
		`CREATE INDEX IF NOT EXISTS idx_feegow_date ON feegow_appointments(date)`,
		`CREATE INDEX IF NOT EXISTS idx_feegow_user ON feegow_appointments(scheduled_by)`,
	} {
		if _, err := s.db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("ensure financial index: %w", err)
		}
	}
	return nil
}

// UpsertFinancialAppointment merges one financial record by appointment id,
// preserving date, specialty and professional on conflict.
func (s *SQLiteStore) UpsertFinancialAppointment(ctx context.Context, appt FinancialAppointment) error {
	const q = `
INSERT INTO feegow_appointments (
    appointment_id, date, status_id, value,
    specialty, professional_name, procedure_group,
    scheduled_by, unit_name, updated_at
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
ON CONFLICT (appointment_id) DO UPDATE SET
    status_id = excluded.status_id,
    value = excluded.value,
    procedure_group = excluded.procedure_group,
    scheduled_by = excluded.scheduled_by,
    unit_name = excluded.unit_name,
    updated_at = excluded.updated_at;
`
	if _, err := s.db.ExecContext(ctx, q,
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
func (s *SQLiteStore) CountFinancialAppointments(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feegow_appointments`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count financial appointments: %w", err)
	}
	return count, nil
}
