package device

import (
	"context"
	"log/slog"
)

// nopHandler silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// NopLogger returns a logger that discards everything. Back ends start with
// it until the engine propagates its own.
func NopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// LoggerSetter is implemented by back ends that accept a logger.
type LoggerSetter interface {
	SetLogger(*slog.Logger)
}
