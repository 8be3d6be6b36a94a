package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/natefinch/lumberjack"

	"github.com/tonimelisma/onedrive-proxy/internal/config"
)

// logFileMaxSizeMB is the size at which the log file is rotated.
const logFileMaxSizeMB = 50

// Log formats accepted in logging.format besides "auto".
const (
	logFormatText = "text"
	logFormatJSON = "json"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger builds a logger for the logging section. Output goes to stderr,
// or to a rotating file when logging.file is set. "auto" picks the colour
// handler on a terminal and JSON everywhere else.
func newLogger(lc config.LoggingConfig, stderr io.Writer) (*slog.Logger, io.Closer) {
	var (
		out    = stderr
		closer io.Closer = nopCloser{}
		tty    = isTerminal(stderr)
	)

	if lc.File != "" {
		lj := &lumberjack.Logger{
			Filename: lc.File,
			MaxSize:  logFileMaxSizeMB,
			MaxAge:   lc.RetentionDays,
		}

		out, closer, tty = lj, lj, false
	}

	level := parseLevel(lc.Level)

	var h slog.Handler

	switch lc.Format {
	case logFormatJSON:
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	case logFormatText:
		h = tint.NewHandler(out, &tint.Options{Level: level, TimeFormat: "15:04:05.000", NoColor: !tty})
	default:
		if tty {
			h = tint.NewHandler(out, &tint.Options{Level: level, TimeFormat: "15:04:05.000"})
		} else {
			h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
		}
	}

	return slog.New(h), closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
