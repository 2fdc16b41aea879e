// Package logging builds the process-wide structured logger. Every package
// that needs a logger calls For(name) rather than holding a global,
// attaching a stable component field instead of prefixing messages with
// the package name.
package logging

import (
	"log/slog"
	"os"
)

// Init installs a JSON slog handler at the given level as the default
// logger. Called once from cmd/vulnsentinel/main.go; every other package
// just calls For().
func Init(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

// For returns a logger with a "component" field set to name, for a package
// or engine to attach to every log line it emits.
func For(name string) *slog.Logger {
	return slog.Default().With("component", name)
}
