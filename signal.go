package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext is canceled by the first SIGINT or SIGTERM, which starts
// the proxy's drain of in-flight requests. A second signal while draining
// calls forceExit; nil means exit with status 1.
func shutdownContext(parent context.Context, logger *slog.Logger, forceExit func()) context.Context {
	if forceExit == nil {
		forceExit = func() { os.Exit(1) }
	}

	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("draining proxy requests",
				slog.String("signal", sig.String()),
				slog.Int("pid", os.Getpid()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("second signal during drain, exiting now",
				slog.String("signal", sig.String()),
			)
			forceExit()
		case <-parent.Done():
		}
	}()

	return ctx
}
