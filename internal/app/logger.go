package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a configured slog.Logger writing to stdout.
func NewLogger(cfg *Config) *slog.Logger {
	format, level := "pretty", "info"
	if cfg != nil {
		format, level = cfg.LogFormat, cfg.LogLevel
	}
	return NewLoggerTo(os.Stdout, format, level)
}

// NewLoggerTo builds a text or JSON logger on w. Unknown levels fall back
// to info.
func NewLoggerTo(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: ParseLevel(level)}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
