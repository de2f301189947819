package repo

import (
	"context"
	"io/fs"
)

// Store defines the persistence operations the pipelines need. Two
// implementations exist: Postgres (pgx) and SQLite (modernc).
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Chat statistics
	UpsertChatStats(ctx context.Context, stats DailyChatStats) error
	ReplaceGroupSnapshots(ctx context.Context, snapshots []GroupSnapshot) error

	// Appointment statistics
	UpsertAppointmentStats(ctx context.Context, stats DailyAppointmentStats) error

	// Financial appointments
	EnsureFinancialSchema(ctx context.Context) error
	UpsertFinancialAppointment(ctx context.Context, appt FinancialAppointment) error
	CountFinancialAppointments(ctx context.Context) (int, error)
}
