// Package logging builds the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"notus-gateway/internal/config"
)

// New returns a logger writing to out and, when cfg.File is set, to a rotated
// JSON log file as well. The returned cleanup closes the file.
func New(cfg *config.LogConfig, out io.Writer) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	cleanup := func() {}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("log: create directory for %s: %w", cfg.File, err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		cleanup = func() { _ = rotator.Close() }

		// The file is always JSON; only the console honours log.format.
		if strings.ToLower(cfg.Format) != "text" {
			return slog.New(slog.NewJSONHandler(io.MultiWriter(out, rotator), opts)), cleanup, nil
		}
		return slog.New(&fanout{handlers: []slog.Handler{
			slog.NewTextHandler(out, opts),
			slog.NewJSONHandler(rotator, opts),
		}}), cleanup, nil
	}

	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(out, opts)), cleanup, nil
	}
	return slog.New(slog.NewJSONHandler(out, opts)), cleanup, nil
}

// ParseLevel maps a config level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
