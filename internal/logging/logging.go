// Package logging builds the slog loggers used by the command-line tools.
package logging

import (
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
)

// Options selects the handler and level.
type Options struct {
	Level slog.Level
	JSON  bool // Emit JSON lines instead of coloured text
}

// New returns a logger writing to w. Text output uses tint with a short
// time format.
func New(w io.Writer, opts Options) *slog.Logger {
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      opts.Level,
		TimeFormat: "15:04:05",
	}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
