// Package logging sets up zerolog for catalog-sync and names the context
// fields the sync packages attach to their events.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Context fields shared by the catalog client, paginator, syncer and tracker.
const (
	FieldComponent = "component"
	FieldRunID     = "run_id"
	FieldKind      = "kind"
	FieldRound     = "round"
	FieldOffset    = "offset"
	FieldLimit     = "limit"
	FieldItems     = "items"
	FieldPercent   = "percent"
	FieldDuration  = "duration"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options mirrors the logging section of the CLI config.
type Options struct {
	// Level is a zerolog level name. Unknown or empty names mean info.
	Level string

	// Format is FormatConsole or FormatJSON.
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// Setup installs the global logger that NewLogger derives from.
func Setup(opts Options) zerolog.Logger {
	zerolog.SetGlobalLevel(levelOf(opts.Level))

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(opts.Format, FormatConsole) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

func levelOf(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		return zerolog.WarnLevel
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// NewLogger returns a child of the current global logger tagged with component.
// Call it after Setup; loggers created earlier keep the previous writer.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str(FieldComponent, component).Logger()
}

// WithRun tags l with a sync run id.
func WithRun(l zerolog.Logger, runID string) zerolog.Logger {
	return l.With().Str(FieldRunID, runID).Logger()
}

// WithKind tags l with the entity kind being synced.
func WithKind(l zerolog.Logger, kind string) zerolog.Logger {
	return l.With().Str(FieldKind, kind).Logger()
}
