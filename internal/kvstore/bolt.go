package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.etcd.io/bbolt"
)

var bucketDrives = []byte("drives")

// boltOpenTimeout bounds how long Open waits for the file lock held by
// another process (e.g. a running server while the CLI inspects drives).
const boltOpenTimeout = 1 * time.Second

// BoltStore keeps drive records in one bbolt bucket. Keys iterate in byte
// order, which gives List its ascending order for free.
type BoltStore struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// OpenBolt opens (or creates) the bbolt file at path.
func OpenBolt(path string, logger *slog.Logger) (*BoltStore, error) {
	if path == "" {
		return nil, errors.New("kvstore: bolt path is empty")
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("kvstore: opening bolt file %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketDrives)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kvstore: creating bucket: %w", err)
	}

	logger.Info("bolt store opened", slog.String("path", path))

	return &BoltStore{db: db, logger: logger}, nil
}

func (b *BoltStore) List(_ context.Context) ([]string, error) {
	var keys []string

	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDrives).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: listing keys: %w", err)
	}

	return keys, nil
}

func (b *BoltStore) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte

	err := b.db.View(func(tx *bbolt.Tx) error {
		// Values are only valid for the life of the transaction.
		if v := tx.Bucket(bucketDrives).Get([]byte(key)); v != nil {
			out = slices.Clone(v)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: reading %s: %w", key, err)
	}

	if out == nil {
		return nil, ErrNotFound
	}

	return out, nil
}

func (b *BoltStore) Put(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDrives).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("kvstore: writing %s: %w", key, err)
	}

	b.logger.Debug("stored record", slog.String("key", key), slog.Int("bytes", len(value)))

	return nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
