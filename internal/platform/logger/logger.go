// Package logger builds the process-wide slog logger from configuration.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/p-n-ai/quizbot/internal/platform/config"
)

// New returns a logger writing to stdout.
func New(cfg config.LogConfig) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg)
}

// NewWithWriter returns a JSON logger, or a text logger when cfg.Format is
// "text", at cfg.Level. Unknown levels fall back to info.
func NewWithWriter(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
