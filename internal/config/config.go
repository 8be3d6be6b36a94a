// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for onedrive-proxy. Values resolve
// through defaults -> config file -> environment -> CLI flags.
package config

// Server modes.
const (
	ModeMulti  = "multi"
	ModeSingle = "single"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	OAuth   OAuthConfig   `toml:"oauth"`
	Graph   GraphConfig   `toml:"graph"`
	Listing ListingConfig `toml:"listing"`
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`

	// DisplayTimezone is an IANA zone name or a UTC offset such as
	// "UTC+8". It only affects the update_date written to drive records.
	DisplayTimezone string `toml:"display_timezone"`
}

// ServerConfig controls the HTTP listener and routing variant.
type ServerConfig struct {
	Listen string `toml:"listen" validate:"required,hostname_port"`
	Mode   string `toml:"mode" validate:"required,oneof=multi single"`
	// Drive is the fixed drive key in single mode.
	Drive           string     `toml:"drive"`
	FaviconURL      string     `toml:"favicon_url" validate:"required,url"`
	ShutdownTimeout string     `toml:"shutdown_timeout"`
	CORS            CORSConfig `toml:"cors"`
}

// CORSConfig enables cross-origin access for browser front ends.
type CORSConfig struct {
	Enabled          bool     `toml:"enabled"`
	AllowedOrigins   []string `toml:"allowed_origins"`
	AllowedMethods   []string `toml:"allowed_methods"`
	AllowedHeaders   []string `toml:"allowed_headers"`
	ExposedHeaders   []string `toml:"exposed_headers"`
	AllowCredentials bool     `toml:"allow_credentials"`
	MaxAge           int      `toml:"max_age" validate:"min=0"`
}

// StoreConfig selects the drive record backend.
type StoreConfig struct {
	Backend string `toml:"backend" validate:"required,oneof=sqlite bolt postgres memory"`
	// Path is the database file for sqlite and bolt. Empty means a file
	// in DefaultDataDir.
	Path  string `toml:"path"`
	DSN   string `toml:"dsn"`
	Table string `toml:"table"`
}

// OAuthConfig holds the identity platform settings shared by all drives.
type OAuthConfig struct {
	Authority   string   `toml:"authority" validate:"required,url"`
	Tenant      string   `toml:"tenant" validate:"required"`
	RedirectURI string   `toml:"redirect_uri" validate:"required,url"`
	Scopes      []string `toml:"scopes" validate:"min=1,dive,required"`
}

// GraphConfig points the client at a Graph API root.
type GraphConfig struct {
	BaseURL string `toml:"base_url" validate:"required,url"`
}

// ListingConfig sets listing defaults that requests may override.
type ListingConfig struct {
	Fields string `toml:"fields" validate:"required"`
	Limit  int    `toml:"limit" validate:"min=1,max=999"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level         string `toml:"level" validate:"required,oneof=debug info warn error"`
	Format        string `toml:"format" validate:"required,oneof=auto text json"`
	File          string `toml:"file"`
	RetentionDays int    `toml:"retention_days" validate:"min=0"`
}

// NetworkConfig controls the outbound HTTP client.
type NetworkConfig struct {
	// RequestTimeout bounds each outbound request. "0" disables it.
	RequestTimeout string `toml:"request_timeout"`
}
