package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 200 * time.Millisecond

// ReloadFunc produces a fresh, validated Config.
type ReloadFunc func() (*Config, error)

// Watch reloads h whenever its config file changes, until ctx is done.
// The parent directory is watched so that atomic replace-by-rename saves
// are seen. A reload that fails is logged and the previous config stays.
func Watch(ctx context.Context, h *Holder, reload ReloadFunc, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(h.Path())
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config: watching %s: %w", filepath.Dir(target), err)
	}

	logger.Info("watching config file", slog.String("path", target))

	// Armed only by file events.
	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target {
				continue
			}

			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(reloadDebounce)
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", werr.Error()))

		case <-timer.C:
			cfg, err := reload()
			if err != nil {
				logger.Warn("config reload failed, keeping previous config",
					slog.String("path", target),
					slog.String("error", err.Error()),
				)

				continue
			}

			stale := h.Update(cfg)
			logger.Info("config reloaded", slog.String("path", target))

			if len(stale) > 0 {
				logger.Warn("changed settings take effect after a restart",
					slog.Any("keys", stale),
				)
			}
		}
	}
}
