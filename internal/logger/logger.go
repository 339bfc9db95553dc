// Package logger provides structured logging for the Whisper server.
// Output goes to stderr as text by default; verbose mode lowers the
// level to debug so operators can follow the ingestion and serving
// pipelines.
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	level   = newLevelVar()
	log     = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
)

func newLevelVar() *slog.LevelVar {
	v := &slog.LevelVar{}
	v.Set(slog.LevelInfo)
	return v
}

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// IsVerbose returns true if debug logging is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the destination writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Debug logs a message at debug level. Attrs alternate key, value.
func Debug(msg string, attrs ...any) {
	current().Debug(msg, attrs...)
}

// Info logs a message at info level.
func Info(msg string, attrs ...any) {
	current().Info(msg, attrs...)
}

// Warn logs a message at warn level.
func Warn(msg string, attrs ...any) {
	current().Warn(msg, attrs...)
}

// Error logs a message at error level.
func Error(msg string, attrs ...any) {
	current().Error(msg, attrs...)
}

// With returns a child logger carrying the given attributes on every
// record. The child tracks the package level but not later SetOutput
// calls.
func With(attrs ...any) *slog.Logger {
	return current().With(attrs...)
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}
