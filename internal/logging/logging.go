package logging

import (
	"io"
	"log/slog"
	"os"
)

// Init installs the default slog logger. The level comes from override when set,
// otherwise from LOG_LEVEL; production only shows errors.
func Init(override string) {
	level := ParseLevel(os.Getenv("LOG_LEVEL"))
	if override != "" {
		level = ParseLevel(override)
	}
	slog.SetDefault(New(os.Stderr, level))
}

// New builds a text logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		}),
	)
}

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(l string) slog.Level {
	switch l {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Discard is a logger that drops everything, for tests and optional collaborators.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
