package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"netscope/internal/infra"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ApplyMigrations executes the embedded SQL migrations in lexical order.
// Every statement is idempotent, so running them on each start is safe.
func ApplyMigrations(ctx context.Context, db execer, logger *infra.Logger) error {
	return applyMigrations(ctx, db, migrationFiles, logger)
}

func applyMigrations(ctx context.Context, db execer, files fs.FS, logger *infra.Logger) error {
	names, err := fs.Glob(files, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	if len(names) == 0 {
		logger.Println(ctx, "no migrations found")
		return nil
	}

	for _, name := range names {
		contents, readErr := fs.ReadFile(files, name)
		if readErr != nil {
			return fmt.Errorf("read migration %q: %w", name, readErr)
		}

		statements := strings.TrimSpace(string(contents))
		if statements == "" {
			logger.Printf(ctx, "skipping empty migration %s", name)
			continue
		}

		logger.Printf(ctx, "applying migration %s", name)
		if _, execErr := db.ExecContext(ctx, statements); execErr != nil {
			return fmt.Errorf("apply migration %q: %w", name, execErr)
		}
	}

	logger.Println(ctx, "migrations applied successfully")
	return nil
}
