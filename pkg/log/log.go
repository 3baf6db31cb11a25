// Package log configures slog for flowcanvas processes.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Service is attached to every record of the logger installed by Setup.
const Service = "flowcanvas"

// ParseLevel maps a level name such as "debug" or "WARN" to a slog level.
// Unknown names fall back to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}

	return level
}

// Setup installs a text logger on stderr as the default logger.
func Setup(logLevel string) *slog.Logger {
	return SetupWriter(os.Stderr, logLevel)
}

// SetupWriter is Setup writing to w.
func SetupWriter(w io.Writer, logLevel string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	})).With(slog.String("service", Service))

	slog.SetDefault(logger)

	return logger
}

// WithModule returns the default logger tagged with module.
func WithModule(module string) *slog.Logger {
	return slog.Default().With(slog.String("module", module))
}
