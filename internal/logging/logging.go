// Package logging provides structured, component-scoped logging for every
// subsystem in the server, backed by zerolog instead of a hand-rolled
// formatter.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors zerolog's level hierarchy under names the rest of the
// codebase uses directly, so callers never import zerolog themselves.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// ParseLevel parses a case-insensitive level name, defaulting to Info on
// an unrecognized value.
func ParseLevel(name string) (Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return InfoLevel, err
	}
	return lvl, nil
}

// Config selects the logger's destination, level, and rendering.
type Config struct {
	Level      Level
	JSON       bool
	Output     io.Writer
	ShowCaller bool
}

// DefaultConfig logs human-readable text at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: InfoLevel, JSON: false, Output: os.Stderr}
}

// Logger wraps a zerolog.Logger, adding the WithComponent/WithField
// chaining shape the rest of the tree is written against.
type Logger struct {
	zl zerolog.Logger
}

// New builds a root logger from cfg.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(out).Level(cfg.Level).With().Timestamp()
	if cfg.ShowCaller {
		zl = zl.Caller()
	}
	return &Logger{zl: zl.Logger()}
}

// WithComponent scopes all subsequent messages with a "component" field,
// the same organizing idiom as the rest of the pack's loggers.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

// WithField returns a logger with one additional structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithFields returns a logger with several additional structured fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zl: ctx.Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(err error, msg string) {
	l.zl.Error().Err(err).Msg(msg)
}

// Event exposes the underlying zerolog event builder for call sites that
// need more than one ad hoc field attached to a single message.
func (l *Logger) Event(level Level) *zerolog.Event {
	switch level {
	case DebugLevel:
		return l.zl.Debug()
	case WarnLevel:
		return l.zl.Warn()
	case ErrorLevel:
		return l.zl.Error()
	default:
		return l.zl.Info()
	}
}

var global = New(DefaultConfig())

// SetGlobal replaces the package-level default logger, e.g. once config
// has been loaded at startup.
func SetGlobal(l *Logger) { global = l }

// Global returns the package-level default logger.
func Global() *Logger { return global }
