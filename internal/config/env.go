package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "ONEDRIVE_PROXY_CONFIG"
	EnvListen       = "ONEDRIVE_PROXY_LISTEN"
	EnvMode         = "ONEDRIVE_PROXY_MODE"
	EnvDrive        = "ONEDRIVE_PROXY_DRIVE"
	EnvStoreBackend = "ONEDRIVE_PROXY_STORE_BACKEND"
	EnvStorePath    = "ONEDRIVE_PROXY_STORE_PATH"
	EnvStoreDSN     = "ONEDRIVE_PROXY_STORE_DSN"
	EnvLogLevel     = "ONEDRIVE_PROXY_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // ONEDRIVE_PROXY_CONFIG: override config file path
	Listen       string // ONEDRIVE_PROXY_LISTEN
	Mode         string // ONEDRIVE_PROXY_MODE
	Drive        string // ONEDRIVE_PROXY_DRIVE: fixed drive in single mode
	StoreBackend string // ONEDRIVE_PROXY_STORE_BACKEND
	StorePath    string // ONEDRIVE_PROXY_STORE_PATH
	StoreDSN     string // ONEDRIVE_PROXY_STORE_DSN: keeps credentials out of the file
	LogLevel     string // ONEDRIVE_PROXY_LOG_LEVEL
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers use Apply.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		Listen:       os.Getenv(EnvListen),
		Mode:         os.Getenv(EnvMode),
		Drive:        os.Getenv(EnvDrive),
		StoreBackend: os.Getenv(EnvStoreBackend),
		StorePath:    os.Getenv(EnvStorePath),
		StoreDSN:     os.Getenv(EnvStoreDSN),
		LogLevel:     os.Getenv(EnvLogLevel),
	}
}

// Apply writes every non-empty override onto cfg.
func (e EnvOverrides) Apply(cfg *Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	set(&cfg.Server.Listen, e.Listen)
	set(&cfg.Server.Mode, e.Mode)
	set(&cfg.Server.Drive, e.Drive)
	set(&cfg.Store.Backend, e.StoreBackend)
	set(&cfg.Store.Path, e.StorePath)
	set(&cfg.Store.DSN, e.StoreDSN)
	set(&cfg.Logging.Level, e.LogLevel)
}
