package cli

import (
	"io"
	"log/slog"

	"github.com/roach88/atlas/internal/config"
)

// newLogger builds a text or JSON handler on w. verbose forces debug level.
func newLogger(cfg config.LogConfig, verbose bool, w io.Writer) *slog.Logger {
	lvl := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}

	hopts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return slog.New(h)
}

// setupLogging installs the process-wide default logger.
func setupLogging(cfg config.LogConfig, verbose bool, w io.Writer) *slog.Logger {
	l := newLogger(cfg, verbose, w)
	slog.SetDefault(l)
	return l
}
