package repo

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
)

// applyMigrations executes the SQL files under the named subdirectory of the
// provided filesystem in lexicographic order, one exec call per file.
func applyMigrations(_ context.Context, filesystem fs.FS, dialect string, exec func(sql string) error) error {
	sub, err := fs.Sub(filesystem, dialect)
	if err != nil {
		return fmt.Errorf("open %s migrations: %w", dialect, err)
	}

	entries, err := fs.ReadDir(sub, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		sqlBytes, err := fs.ReadFile(sub, entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if len(sqlBytes) == 0 {
			continue
		}
		if err := exec(string(sqlBytes)); err != nil {
			return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}
