// Package logging builds the slog logger shared by adapters and views.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New returns a text logger writing to w at the named level.
// Unknown levels fall back to INFO; debug forces DEBUG.
func New(level string, debug bool, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if debug {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
