package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultPostgresTable is used when Options.Table is empty.
const DefaultPostgresTable = "onedrive_proxy_drives"

// PostgresStore keeps drive records in a jsonb column of a Postgres table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	table  string // sanitized identifier
	logger *slog.Logger
}

// OpenPostgres connects to dsn and ensures the table exists.
func OpenPostgres(ctx context.Context, dsn, table string, logger *slog.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("kvstore: postgres dsn is empty")
	}

	if table == "" {
		table = DefaultPostgresTable
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("kvstore: connecting to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("kvstore: pinging postgres: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		table:  pgx.Identifier{table}.Sanitize(),
		logger: logger,
	}

	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("postgres store opened", slog.String("table", table))

	return s, nil
}

func (s *PostgresStore) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  key text PRIMARY KEY,
  value jsonb NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now()
)`, s.table)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("kvstore: creating table: %w", err)
	}

	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT key FROM %s ORDER BY key`, s.table))
	if err != nil {
		return nil, fmt.Errorf("kvstore: listing keys: %w", err)
	}

	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("kvstore: scanning keys: %w", err)
	}

	return keys, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT value::text FROM %s WHERE key = $1`, s.table), key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("kvstore: reading %s: %w", key, err)
	}

	return value, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, value, updated_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = now()`, s.table)

	if _, err := s.pool.Exec(ctx, query, key, string(value)); err != nil {
		return fmt.Errorf("kvstore: writing %s: %w", key, err)
	}

	s.logger.Debug("stored record", slog.String("key", key), slog.Int("bytes", len(value)))

	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
