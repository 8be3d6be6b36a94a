package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-proxy/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// Effective configuration loaded by PersistentPreRunE. resolvedCLI is kept
// so a config reload applies the same flags again.
var (
	resolvedCfg     *config.Config
	resolvedCfgPath string
	resolvedCLI     config.CLIOverrides
)

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "onedrive-proxy",
		Short:   "OneDrive and SharePoint edge proxy",
		Long:    "An HTTP proxy that exposes OneDrive and SharePoint drives as a small JSON API, managing OAuth tokens per drive.",
		Version: version,
		// Errors are printed once by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "only log errors")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDriveCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	cli := cliOverrides(cmd)

	cfg, path, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = cfg
	resolvedCfgPath = path
	resolvedCLI = cli

	return nil
}

// cliOverrides collects the flags the user explicitly set. --listen and
// --ephemeral only exist on serve.
func cliOverrides(cmd *cobra.Command) config.CLIOverrides {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		listen := f.Value.String()
		cli.Listen = &listen
	}

	if f := cmd.Flags().Lookup("ephemeral"); f != nil && f.Changed {
		cli.Ephemeral = f.Value.String() == "true"
	}

	var level string

	switch {
	case flagQuiet:
		level = "error"
	case flagVerbose:
		level = "debug"
	}

	if level != "" {
		cli.LogLevel = &level
	}

	return cli
}

// reloadConfig re-runs resolution with the flags given at startup.
func reloadConfig() (*config.Config, error) {
	cfg, _, err := config.Resolve(config.ReadEnvOverrides(), resolvedCLI)
	return cfg, err
}

// buildLogger creates the process logger from the resolved config. The
// closer releases the log file when one is configured.
func buildLogger() (*slog.Logger, io.Closer) {
	lc := config.DefaultConfig().Logging
	if resolvedCfg != nil {
		lc = resolvedCfg.Logging
	}

	return newLogger(lc, os.Stderr)
}
