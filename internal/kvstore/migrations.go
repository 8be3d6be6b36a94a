package kvstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateSQLite brings the drive_configs schema up to date and returns the
// schema version the database is at afterwards.
func migrateSQLite(ctx context.Context, db *sql.DB, logger *slog.Logger) (int64, error) {
	scripts, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("kvstore: loading sqlite schema: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, scripts)
	if err != nil {
		return 0, fmt.Errorf("kvstore: preparing sqlite schema: %w", err)
	}

	applied, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("kvstore: migrating sqlite schema: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("kvstore: reading sqlite schema version: %w", err)
	}

	if len(applied) == 0 {
		logger.Debug("kvstore schema current",
			slog.String("backend", BackendSQLite),
			slog.Int64("version", version),
		)

		return version, nil
	}

	logger.Info("kvstore schema migrated",
		slog.String("backend", BackendSQLite),
		slog.Int("applied", len(applied)),
		slog.Int64("version", version),
	)

	return version, nil
}
