// Package logging holds the process-wide structured logger used by the
// render loop packages.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger = defaultLogger()
	mu     sync.RWMutex
)

func defaultLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.WarnLevel).
		With().
		Timestamp().
		Logger()
}

// Logger returns the current process logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the process logger and returns the previous one so
// callers can restore it during cleanup.
func SetLogger(l zerolog.Logger) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	prev := logger
	logger = l
	return prev
}

// Init configures the process logger with the given level, writing
// human-readable output to w (stderr when nil). An unparseable level falls
// back to info.
func Init(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if w == nil {
		w = os.Stderr
	}
	l := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
	SetLogger(l)
	return l
}

// Component returns the process logger tagged with a component field.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}
