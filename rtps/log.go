package rtps

import (
	"io"
	"log/slog"
	"sync/atomic"
)

var pkgLogger atomic.Pointer[slog.Logger]

func init() {
	pkgLogger.Store(noopLogger())
}

// noopLogger discards everything: the handler is never enabled.
func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // unreachable level
	}))
}

// SetLogger installs l as the package logger. A nil l restores the
// default, which discards all output.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = noopLogger()
	}
	pkgLogger.Store(l)
}

func logger() *slog.Logger {
	return pkgLogger.Load()
}
