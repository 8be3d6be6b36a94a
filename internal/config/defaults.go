package config

import (
	"github.com/tonimelisma/onedrive-proxy/internal/graph"
)

// Default values for configuration options. These are layer 0 of the
// override chain and reproduce the behavior of a proxy with no config file.
const (
	defaultListen          = ":8787"
	defaultMode            = ModeMulti
	defaultFaviconURL      = "https://dash.cloudflare.com/favicon.ico"
	defaultShutdownTimeout = "15s"
	defaultStoreBackend    = "sqlite"
	defaultPostgresTable   = "onedrive_proxy_drives"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultLogRetention    = 30
	defaultRequestTimeout  = "0"
	defaultTimezone        = "UTC+8"
	defaultCORSMaxAge      = 300
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          defaultListen,
			Mode:            defaultMode,
			FaviconURL:      defaultFaviconURL,
			ShutdownTimeout: defaultShutdownTimeout,
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Page"},
				MaxAge:         defaultCORSMaxAge,
			},
		},
		Store: StoreConfig{
			Backend: defaultStoreBackend,
			Table:   defaultPostgresTable,
		},
		OAuth: OAuthConfig{
			Authority:   graph.DefaultAuthority,
			Tenant:      graph.DefaultTenant,
			RedirectURI: graph.DefaultRedirectURI,
			Scopes:      append([]string(nil), graph.DefaultScopes...),
		},
		Graph: GraphConfig{
			BaseURL: graph.DefaultBaseURL,
		},
		Listing: ListingConfig{
			Fields: graph.DefaultSelect,
			Limit:  graph.DefaultPageSize,
		},
		Logging: LoggingConfig{
			Level:         defaultLogLevel,
			Format:        defaultLogFormat,
			RetentionDays: defaultLogRetention,
		},
		Network: NetworkConfig{
			RequestTimeout: defaultRequestTimeout,
		},
		DisplayTimezone: defaultTimezone,
	}
}
