// Package logging provides dependency-injected structured logging for the
// scheduler and worker processes.
//
// Design principles:
//   - Logging is dependency-injected, never global
//   - Each component scopes its own logger once at construction time via
//     slog.With()
//   - Global configuration (output format, level, destination) belongs only
//     in main()
//
// Components must never call slog.SetDefault or reach for a package-level
// logger. Logging stays at lifecycle boundaries (registration, placement
// decisions, store/retrieve failures) and out of hot loops such as
// per-byte chunk copying.
package logging

import (
	"context"
	"log/slog"
)

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that discards all output.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger if non-nil, otherwise a discard logger. Use this
// for optional *slog.Logger constructor parameters:
//
//	func New(logger *slog.Logger) *Thing {
//	    logger = logging.Default(logger)
//	    return &Thing{logger: logger.With("component", "thing")}
//	}
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// NewBase builds the process-wide base logger for main() to pass down via
// dependency injection. json selects slog.JSONHandler (production); the
// text handler is used otherwise (local development).
func NewBase(w interface {
	Write([]byte) (int, error)
}, level slog.Level, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
