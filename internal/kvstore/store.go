// Package kvstore persists opaque JSON blobs keyed by drive identifier.
// Backends are interchangeable behind Store: an embedded SQLite database
// (default), a bbolt file, a Postgres table, or an in-memory map.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotFound is returned by Get when the key has no record.
var ErrNotFound = errors.New("kvstore: key not found")

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Store is the minimal key-value contract the proxy needs. There are no
// transactional guarantees across calls; the last Put for a key wins.
type Store interface {
	// List returns every stored key in ascending order.
	List(ctx context.Context) ([]string, error)
	// Get returns the raw value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put creates or overwrites the value for key.
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the database file for sqlite and bolt.
	Path string
	// DSN is the connection string for postgres.
	DSN string
	// Table is the postgres table name.
	Table string
}

// Open constructs the backend named in opts.Backend.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Backend {
	case BackendSQLite, "":
		return OpenSQLite(ctx, opts.Path, logger)
	case BackendBolt:
		return OpenBolt(opts.Path, logger)
	case BackendPostgres:
		return OpenPostgres(ctx, opts.DSN, opts.Table, logger)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("kvstore: unknown backend %q", opts.Backend)
	}
}
