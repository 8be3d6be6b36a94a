package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tonimelisma/onedrive-proxy/internal/kvstore"
)

// Repository reads and writes Config records as JSON in a kvstore.Store.
type Repository struct {
	store kvstore.Store
}

// NewRepository wraps store.
func NewRepository(store kvstore.Store) *Repository {
	return &Repository{store: store}
}

// List returns all drive keys in ascending order.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	keys, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("drive: listing drives: %w", err)
	}

	return keys, nil
}

// Get loads the record for key. A missing key yields an error wrapping
// ErrNotFound.
func (r *Repository) Get(ctx context.Context, key string) (Config, error) {
	raw, err := r.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return Config{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	if err != nil {
		return Config{}, fmt.Errorf("drive: loading %s: %w", key, err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("drive: decoding %s: %w", key, err)
	}

	return cfg, nil
}

// Put stores cfg under key, replacing any existing record.
func (r *Repository) Put(ctx context.Context, key string, cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("drive: encoding %s: %w", key, err)
	}

	if err := r.store.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("drive: saving %s: %w", key, err)
	}

	return nil
}

// Import stores a record supplied as raw JSON. The payload must decode as a
// Config; it is re-encoded so the stored form is canonical.
func (r *Repository) Import(ctx context.Context, key string, raw []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("drive: decoding import for %s: %w", key, err)
	}

	if cfg.DriveID == "" {
		cfg.DriveID = key
	}

	if err := r.Put(ctx, key, cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
