package observability

import (
	"log/slog"
	"os"
)

// process-wide logger, JSON to stderr.
var logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))

func Logger() *slog.Logger {
	return logger
}

// Component returns a logger tagged with a component name.
func Component(name string) *slog.Logger {
	return logger.With("component", name)
}

// SetLogger replaces the process logger (tests).
func SetLogger(l *slog.Logger) {
	logger = l
}
