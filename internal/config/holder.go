package config

import (
	"reflect"
	"sync/atomic"
)

// Holder is the live proxy configuration. The request path reads a snapshot
// per request and config.Watch installs a new one on reload.
type Holder struct {
	cur  atomic.Pointer[Config]
	path string
}

// NewHolder wraps cfg, loaded from path. path may be empty when the proxy
// runs on defaults.
func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.cur.Store(cfg)

	return h
}

// Config returns the current snapshot. Callers must not mutate it.
func (h *Holder) Config() *Config {
	return h.cur.Load()
}

// Path is the config file the holder was loaded from.
func (h *Holder) Path() string {
	return h.path
}

// Update installs cfg. It returns the keys that differ from the previous
// snapshot but are only read at startup, so the caller can warn that they
// need a restart.
func (h *Holder) Update(cfg *Config) []string {
	return restartKeys(h.cur.Swap(cfg), cfg)
}

// restartKeys lists startup-only settings that differ between prev and next.
func restartKeys(prev, next *Config) []string {
	if prev == nil || next == nil {
		return nil
	}

	var keys []string

	if prev.Server.Listen != next.Server.Listen {
		keys = append(keys, "server.listen")
	}

	if !reflect.DeepEqual(prev.Server.CORS, next.Server.CORS) {
		keys = append(keys, "server.cors")
	}

	if prev.Store != next.Store {
		keys = append(keys, "store")
	}

	if prev.Graph.BaseURL != next.Graph.BaseURL {
		keys = append(keys, "graph.base_url")
	}

	if prev.Network.RequestTimeout != next.Network.RequestTimeout {
		keys = append(keys, "network.request_timeout")
	}

	if prev.Logging != next.Logging {
		keys = append(keys, "logging")
	}

	return keys
}
