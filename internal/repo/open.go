package repo

import (
	"context"
	"log/slog"
	"strings"
)

// Open selects the store implementation from the database URL: postgres://
// URLs get the pgx pool, anything else is treated as a SQLite file path.
func Open(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (Store, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return NewPostgres(ctx, databaseURL, schema, logger)
	}
	return NewSQLite(ctx, databaseURL, logger)
}
