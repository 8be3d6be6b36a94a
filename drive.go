package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-proxy/internal/config"
	"github.com/tonimelisma/onedrive-proxy/internal/drive"
)

// Token states for drive list.
const (
	tokenStateMissing = "missing"
	tokenStateExpired = "expired"
	tokenStateValid   = "valid"
)

func newDriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Inspect and maintain stored drive records",
		Long: `Inspect and maintain the drive records in the configured store.

Drives are registered through the proxy's /{drive}/init and /{drive}/code
endpoints; these commands operate on the records that flow produces.`,
	}

	cmd.AddCommand(newDriveListCmd())
	cmd.AddCommand(newDriveShowCmd())
	cmd.AddCommand(newDriveRefreshCmd())
	cmd.AddCommand(newDriveImportCmd())

	return cmd
}

func newDriveListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored drives and their token state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runDriveList(ctx, a, cmd.OutOrStdout())
			})
		},
	}
}

func newDriveShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <key>",
		Short: "Print a drive record with secrets redacted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runDriveShow(ctx, a, cmd.OutOrStdout(), args[0])
			})
		},
	}
}

func newDriveRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <key>",
		Short: "Force a token refresh for a drive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runDriveRefresh(ctx, a, cmd.OutOrStdout(), args[0])
			})
		},
	}
}

func newDriveImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <key> <file.json>",
		Short: "Write a raw drive record into the store",
		Long: `Write a drive record, as stored JSON, under key.

Use "-" as the file to read from stdin. Existing records are overwritten.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				raw, err := readInput(cmd.InOrStdin(), args[1])
				if err != nil {
					return err
				}

				return runDriveImport(ctx, a, cmd.OutOrStdout(), args[0], raw)
			})
		},
	}
}

// withApp opens the configured store for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	logger, closer := buildLogger()
	defer closer.Close()

	ctx := cmd.Context()

	a, err := newApp(ctx, config.NewHolder(resolvedCfg, resolvedCfgPath), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

// driveSummary is one row of drive list.
type driveSummary struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	DriveType  string `json:"drive_type"`
	Username   string `json:"username,omitempty"`
	TokenState string `json:"token_state"`
	Expires    string `json:"expires,omitempty"`
	UpdateDate string `json:"update_date,omitempty"`
}

func runDriveList(ctx context.Context, a *app, w io.Writer) error {
	keys, err := a.repo.List(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	summaries := make([]driveSummary, 0, len(keys))

	for _, key := range keys {
		cfg, err := a.repo.Get(ctx, key)
		if err != nil {
			return err
		}

		s := driveSummary{
			Key:        key,
			Name:       cfg.Name,
			DriveType:  cfg.DriveType,
			Username:   cfg.Username,
			TokenState: tokenState(cfg, now),
			UpdateDate: cfg.UpdateDate,
		}

		if exp := cfg.Expires(); !exp.IsZero() {
			s.Expires = exp.UTC().Format(time.RFC3339)
		}

		summaries = append(summaries, s)
	}

	if flagJSON {
		return printJSON(w, summaries)
	}

	if len(summaries) == 0 {
		statusf(flagQuiet, "No drives stored. Open /{drive}/init on the proxy to register one.\n")
		return nil
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{s.Key, s.Name, s.DriveType, orDash(s.Username), s.TokenState, orDash(s.Expires)})
	}

	printTable(w, []string{"KEY", "NAME", "TYPE", "OWNER", "TOKEN", "EXPIRES"}, rows)

	return nil
}

func runDriveShow(ctx context.Context, a *app, w io.Writer, key string) error {
	cfg, err := a.repo.Get(ctx, key)
	if err != nil {
		return err
	}

	return printJSON(w, cfg.Redacted())
}

func runDriveRefresh(ctx context.Context, a *app, w io.Writer, key string) error {
	cfg, err := a.repo.Get(ctx, key)
	if err != nil {
		return err
	}

	next, err := a.service.Refresh(ctx, key, cfg)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(w, next.Redacted())
	}

	fmt.Fprintf(w, "Refreshed %s; token valid until %s\n", key, next.Expires().UTC().Format(time.RFC3339))

	return nil
}

func runDriveImport(ctx context.Context, a *app, w io.Writer, key string, raw []byte) error {
	cfg, err := a.repo.Import(ctx, key, raw)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(w, cfg.Redacted())
	}

	fmt.Fprintf(w, "Imported %s (%s)\n", key, orDash(cfg.Name))

	return nil
}

func tokenState(cfg drive.Config, now time.Time) string {
	switch {
	case !cfg.Authenticated():
		return tokenStateMissing
	case cfg.Stale(now):
		return tokenStateExpired
	default:
		return tokenStateValid
	}
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	return data, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
