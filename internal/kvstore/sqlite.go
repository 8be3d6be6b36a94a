package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const (
	sqlListKeys = `SELECT key FROM drive_configs ORDER BY key`
	sqlGetValue = `SELECT value FROM drive_configs WHERE key = ?`
	sqlPutValue = `INSERT INTO drive_configs (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		 value = excluded.value,
		 updated_at = excluded.updated_at`
)

// SQLiteStore keeps drive records in a single table of an embedded SQLite
// database.
type SQLiteStore struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// OpenSQLite opens (or creates) the database at dbPath and runs migrations.
// The database uses WAL mode so CLI reads do not block the server.
func OpenSQLite(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("kvstore: sqlite path is empty")
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("kvstore: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	version, err := migrateSQLite(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite store opened",
		slog.String("db_path", dbPath),
		slog.Int64("schema_version", version),
	)

	return &SQLiteStore{db: db, logger: logger, nowFunc: time.Now}, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, sqlListKeys)
	if err != nil {
		return nil, fmt.Errorf("kvstore: listing keys: %w", err)
	}
	defer rows.Close()

	var keys []string

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("kvstore: scanning key: %w", err)
		}

		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kvstore: iterating keys: %w", err)
	}

	return keys, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string

	err := s.db.QueryRowContext(ctx, sqlGetValue, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("kvstore: reading %s: %w", key, err)
	}

	return []byte(value), nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, sqlPutValue, key, string(value), s.nowFunc().Unix()); err != nil {
		return fmt.Errorf("kvstore: writing %s: %w", key, err)
	}

	s.logger.Debug("stored record", slog.String("key", key), slog.Int("bytes", len(value)))

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
