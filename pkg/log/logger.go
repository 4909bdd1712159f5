// Package log builds the process-wide structured logger and the typed
// attributes the control plane logs with
package log

import (
	"log/slog"
	"os"
)

// New returns a JSON logger tagged with the service identity, emitting at
// info level
func New(service, env, version string) *slog.Logger {
	return NewWithLevel(service, env, version, slog.LevelInfo)
}

// NewWithLevel is New with an explicit minimum level
func NewWithLevel(service, env, version string, lvl slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(h).With(
		slog.String("service", service),
		slog.String("env", env),
		slog.String("version", version),
	)
}
