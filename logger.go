package tileconv

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so SetLogger
// can race with logging from worker goroutines.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for tileconv and its devices.
// By default tileconv produces no log output.
//
// Pass nil to restore the silent default.
//
// Log levels used:
//   - [slog.LevelDebug]: per-tile issue and completion, halo cases
//   - [slog.LevelInfo]: run summary, device selection
//   - [slog.LevelWarn]: CPU fallback, device release errors
//
// Example:
//
//	tileconv.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	devMu.RLock()
	d := registered
	devMu.RUnlock()
	if d != nil {
		propagateLogger(d, l)
	}
}

// Logger returns the current logger.
// The gpu sub-package calls this to share the configuration.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a device that implements
// loggerSetter. Called from SetLogger and RegisterDevice.
func propagateLogger(d Device, l *slog.Logger) {
	if ls, ok := d.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
