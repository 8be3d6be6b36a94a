package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-proxy/internal/config"
	"github.com/tonimelisma/onedrive-proxy/internal/drive"
	"github.com/tonimelisma/onedrive-proxy/internal/graph"
	"github.com/tonimelisma/onedrive-proxy/internal/kvstore"
	"github.com/tonimelisma/onedrive-proxy/internal/server"
)

const readHeaderTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP proxy",
		Long: `Run the HTTP proxy until SIGINT or SIGTERM.

The config file is watched while serving. OAuth, listing and favicon settings
take effect on the next request; the listen address, store and Graph base URL
need a restart.`,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "listen address (host:port)")
	cmd.Flags().Bool("ephemeral", false, "keep drive records in memory only")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, closer := buildLogger()
	defer closer.Close()

	ctx := shutdownContext(cmd.Context(), logger, nil)

	holder := config.NewHolder(resolvedCfg, resolvedCfgPath)

	a, err := newApp(ctx, holder, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := os.Stat(holder.Path()); err == nil {
		go func() {
			if err := config.Watch(ctx, holder, reloadConfig, logger); err != nil {
				logger.Warn("config watch stopped", slog.String("error", err.Error()))
			}
		}()
	}

	return a.serve(ctx)
}

// app is the wired proxy: one store, one Graph client, one service, and the
// HTTP handler over it.
type app struct {
	holder  *config.Holder
	store   kvstore.Store
	repo    *drive.Repository
	service *drive.Service
	handler http.Handler
	logger  *slog.Logger
}

// newApp opens the configured store and wires the service and handler.
// Settings that may change on reload are read through holder.
func newApp(ctx context.Context, holder *config.Holder, logger *slog.Logger) (*app, error) {
	cfg := holder.Config()

	store, err := kvstore.Open(ctx, kvstore.Options{
		Backend: cfg.Store.Backend,
		Path:    cfg.StorePath(),
		DSN:     cfg.Store.DSN,
		Table:   cfg.Store.Table,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}

	client := graph.NewClient(cfg.Graph.BaseURL, &http.Client{Timeout: cfg.RequestTimeout()}, logger)
	repo := drive.NewRepository(store)
	svc := drive.NewService(repo, client, driveSettings(holder), logger)

	h := server.NewHandler(&server.HandlerConfig{
		Settings: serverSettings(holder),
		CORS:     corsConfig(cfg.Server.CORS),
	}, svc, logger)

	return &app{
		holder:  holder,
		store:   store,
		repo:    repo,
		service: svc,
		handler: h.Router(),
		logger:  logger,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// serve listens on the configured address until ctx is canceled.
func (a *app) serve(ctx context.Context) error {
	addr := a.holder.Config().Server.Listen

	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	return a.serveListener(ctx, ln)
}

// serveListener serves on ln, then drains in-flight requests for at most
// server.shutdown_timeout once ctx is canceled.
func (a *app) serveListener(ctx context.Context, ln net.Listener) error {
	cfg := a.holder.Config()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(ln)
	}()

	a.logger.Info("proxy listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("mode", cfg.Server.Mode),
		slog.String("store", cfg.Store.Backend),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	timeout := a.holder.Config().ShutdownTimeout()
	a.logger.Info("shutting down", slog.Duration("timeout", timeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	return nil
}

func driveSettings(holder *config.Holder) func() drive.Settings {
	return func() drive.Settings {
		cfg := holder.Config()

		return drive.Settings{
			OAuth:    graph.NewOAuth(cfg.OAuth.Authority, cfg.OAuth.Tenant, cfg.OAuth.RedirectURI, cfg.OAuth.Scopes),
			Select:   cfg.Listing.Fields,
			Limit:    cfg.Listing.Limit,
			Location: cfg.Location(),
		}
	}
}

func serverSettings(holder *config.Holder) func() server.Settings {
	return func() server.Settings {
		cfg := holder.Config()

		return server.Settings{
			Mode:       cfg.Server.Mode,
			Drive:      cfg.Server.Drive,
			FaviconURL: cfg.Server.FaviconURL,
		}
	}
}

func corsConfig(c config.CORSConfig) server.CORSConfig {
	return server.CORSConfig{
		Enabled:          c.Enabled,
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods,
		AllowedHeaders:   c.AllowedHeaders,
		ExposedHeaders:   c.ExposedHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           c.MaxAge,
	}
}
