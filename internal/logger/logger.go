package logger

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"codeberg.org/mutker/co2scale/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.New(io.Discard)

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// ParseLevel maps a configured level name onto a LogLevel.
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, level)
	}
}

// Init initializes the global logger
func Init(level LogLevel, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()

	SetLogLevel(level)
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return withCode(log.Fatal(), err)
}

func withCode(e *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{e.
		Str("error_code", string(err.Code())).
		Str("error_kind", err.Kind().String()).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

// Component returns a Logger backed by the global logger, tagged with a
// component name.
func Component(name string) Logger {
	return &componentLogger{base: func() zerolog.Logger { return log }, component: name}
}

// New returns a Logger writing JSON lines to w, independent of the global logger.
func New(w io.Writer) Logger {
	l := zerolog.New(w)
	return &componentLogger{base: func() zerolog.Logger { return l }}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return New(io.Discard)
}

type componentLogger struct {
	base      func() zerolog.Logger
	component string
}

func (c *componentLogger) logger() zerolog.Logger {
	l := c.base()
	if c.component != "" {
		return l.With().Str("component", c.component).Logger()
	}
	return l
}

func (c *componentLogger) Debug() *LogEvent {
	l := c.logger()
	return &LogEvent{l.Debug()}
}

func (c *componentLogger) Info() *LogEvent {
	l := c.logger()
	return &LogEvent{l.Info()}
}

func (c *componentLogger) Warn() *LogEvent {
	l := c.logger()
	return &LogEvent{l.Warn()}
}

func (c *componentLogger) Error() *LogEvent {
	l := c.logger()
	return &LogEvent{l.Error()}
}

func (c *componentLogger) ErrorWithCode(err errors.Error) *LogEvent {
	l := c.logger()
	return withCode(l.Error(), err)
}

func (c *componentLogger) With(component string) Logger {
	return &componentLogger{base: c.base, component: component}
}
