package schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// MigrationFS returns the migration files for a dialect, rooted at their directory.
func MigrationFS(d Dialect) (fs.FS, error) {
	return fs.Sub(migrations, d.migrationDir())
}

// Migrate applies every pending migration for the dialect. It is idempotent:
// a fully migrated database yields no results and no error.
func Migrate(ctx context.Context, db *sql.DB, d Dialect, logger *slog.Logger) error {
	fsys, err := MigrationFS(d)
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", d, err)
	}

	provider, err := goose.NewProvider(d.gooseDialect(), db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("migration applied",
			"version", r.Source.Version,
			"file", r.Source.Path,
			"duration", r.Duration,
		)
	}
	if len(results) == 0 {
		logger.Debug("schema up to date", "dialect", string(d))
	}
	return nil
}
