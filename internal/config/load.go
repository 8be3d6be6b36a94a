package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg, err := decode(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func decode(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values, so the proxy runs without
// a config file.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// CLIOverrides holds values from command-line flags. Pointer fields are nil
// when the flag was not given.
type CLIOverrides struct {
	ConfigPath string
	Listen     *string
	LogLevel   *string
	Ephemeral  bool
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns the validated config and the config file path it used.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, string, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(cfgPath); err == nil {
		cfg, err = decode(cfgPath)
		if err != nil {
			return nil, "", err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("reading config file %s: %w", cfgPath, err)
	}

	env.Apply(cfg)
	cli.Apply(cfg)

	if err := Validate(cfg); err != nil {
		return nil, "", fmt.Errorf("config validation: %w", err)
	}

	return cfg, cfgPath, nil
}

// Apply writes the flags that were given onto cfg.
func (o CLIOverrides) Apply(cfg *Config) {
	if o.Listen != nil {
		cfg.Server.Listen = *o.Listen
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}

	if o.Ephemeral {
		cfg.Store.Backend = "memory"
	}
}
