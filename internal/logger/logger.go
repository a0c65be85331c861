package logger

import (
	"io"
	"log/slog"
	"os"
)

var defaultLogger *slog.Logger

func init() {
	lvlStr := os.Getenv("SIGNALYOU_LOG_LEVEL")
	if lvlStr == "" {
		// silent by default; enable via env var
		defaultLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
		return
	}

	lvl := ParseLevel(lvlStr)
	defaultLogger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// L returns the shared application logger.
func L() *slog.Logger {
	return defaultLogger
}

// Set replaces the global logger (useful in tests).
func Set(l *slog.Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// ParseLevel converts a textual level ("debug", "info", "warn", "error") to a
// slog.Level. Unknown strings fall back to slog.LevelInfo.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
