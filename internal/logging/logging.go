// Package logging centralizes zerolog setup for onedrivefs. Components pull
// a sub-logger tagged with their own name rather than writing to the global
// logger directly, so a single log line always carries its origin component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure sets the global zerolog logger according to level and, if
// logPath is non-empty, tees output to that file in addition to stderr.
// An empty level defaults to "info".
func Configure(level, logPath string) error {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	var writer io.Writer = console
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		writer = zerolog.MultiLevelWriter(console, f)
	}
	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	return nil
}

// For returns a sub-logger tagged with the owning component's name, e.g.
// logging.For("sync") or logging.For("fuse").
func For(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
