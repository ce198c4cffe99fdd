// Package logging provides structured logging for the engine and the CLI.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/telestore/telestore/internal/events"
)

// Logger wraps zerolog. Records at warn level and above are also published
// on the event bus when one is attached.
type Logger struct {
	zlog      zerolog.Logger
	component string
	eventBus  *events.EventBus
	output    io.Writer
}

// NewLogger creates a logger writing human-readable records to w.
func NewLogger(w io.Writer, eventBus *events.EventBus) *Logger {
	l := &Logger{eventBus: eventBus}
	l.build(w)
	return l
}

// NewDefaultCLILogger creates a logger on stderr with no bus attached.
// Stdout stays reserved for command output.
func NewDefaultCLILogger() *Logger {
	return NewLogger(os.Stderr, nil)
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zlog: zerolog.Nop(), output: io.Discard}
}

func (l *Logger) build(w io.Writer) {
	l.output = w
	ctx := zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}).With().Timestamp()
	if l.component != "" {
		ctx = ctx.Str("component", l.component)
	}
	zl := ctx.Logger()
	if l.eventBus != nil {
		zl = zl.Hook(busHook{bus: l.eventBus, component: l.component})
	}
	l.zlog = zl
}

// WithComponent returns a child logger tagged with the component name.
func (l *Logger) WithComponent(name string) *Logger {
	child := &Logger{
		component: name,
		eventBus:  l.eventBus,
	}
	if l.output == io.Discard {
		child.zlog = zerolog.Nop()
		child.output = io.Discard
		return child
	}
	child.build(l.output)
	return child
}

// Component returns the component name, empty for the root logger.
func (l *Logger) Component() string {
	return l.component
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger with additional context.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// SetOutput changes the output writer for the logger.
// Used to route records above mpb progress bars.
func (l *Logger) SetOutput(w io.Writer) {
	l.build(w)
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// Debugf logs a debug message with printf-style formatting.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Errorf logs an error message with printf-style formatting.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// busHook mirrors warn+ records onto the event bus.
type busHook struct {
	bus       *events.EventBus
	component string
}

func (h busHook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if level < zerolog.WarnLevel || level == zerolog.NoLevel {
		return
	}
	lvl := events.WarnLevel
	if level >= zerolog.ErrorLevel {
		lvl = events.ErrorLevel
	}
	h.bus.PublishLog(lvl, msg, h.component, nil)
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// SetGlobalLevelString parses a level name ("debug", "info", ...) and applies
// it. Unknown names fall back to info.
func SetGlobalLevelString(name string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
