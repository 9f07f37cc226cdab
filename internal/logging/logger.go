// Package logging owns the process-wide structured logger used by
// cmd/tightbeamctl and, by default, any session.Options left unconfigured.
//
// Grounded on alxayo-rtmp-go/internal/logger/logger.go: a log/slog JSON
// handler behind an atomic level, initialized once, with an environment
// variable fallback and small With* helpers for attaching session context.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const envLogLevel = "TIGHTBEAM_LOG_LEVEL"

var (
	atomicLevel = &dynamicLevel{v: int64(slog.LevelInfo)}
	global      *slog.Logger
	initOnce    sync.Once
)

type dynamicLevel struct{ v int64 }

func (d *dynamicLevel) Level() slog.Level { return slog.Level(atomic.LoadInt64(&d.v)) }
func (d *dynamicLevel) set(l slog.Level)  { atomic.StoreInt64(&d.v, int64(l)) }

// Init initializes the global logger. Safe to call multiple times; only
// the first call has effect, matching alxayo-rtmp-go's sync.Once guard.
func Init() {
	initOnce.Do(func() {
		lvl := detectLevel()
		atomicLevel.set(lvl)
		global = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: atomicLevel}))
	})
}

func detectLevel() slog.Level {
	if env := os.Getenv(envLogLevel); env != "" {
		if lvl, ok := parseLevel(env); ok {
			return lvl
		}
	}
	return slog.LevelInfo
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error", "err":
		return slog.LevelError, true
	}
	return 0, false
}

// SetLevel changes the runtime log level.
func SetLevel(level string) error {
	Init()
	lvl, ok := parseLevel(level)
	if !ok {
		return errNotALevel(level)
	}
	atomicLevel.set(lvl)
	return nil
}

type levelError string

func (e levelError) Error() string { return "logging: invalid level " + string(e) }
func errNotALevel(s string) error  { return levelError(s) }

// UseWriter swaps the output writer, intended for tests.
func UseWriter(w io.Writer) {
	Init()
	global = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: atomicLevel}))
}

// Logger returns the global logger, initializing it on first use.
func Logger() *slog.Logger {
	Init()
	return global
}

// WithSession attaches a session identifier to every subsequent log line.
func WithSession(l *slog.Logger, sessionID string) *slog.Logger {
	return l.With("session", sessionID)
}
