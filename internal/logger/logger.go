package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with variadic key-value helpers so call sites stay
// compact.
type Logger struct {
	z zerolog.Logger
}

var defaultLogger = newConsole(os.Stderr)

// Default returns the process-wide logger. Components that are handed a
// nil logger fall back to this one.
func Default() *Logger { return defaultLogger }

// Setup reconfigures the default logger. level is one of DEBUG, INFO,
// WARN, ERROR (case-insensitive, default INFO); format is "json" or
// "console".
func Setup(level, format string) {
	var logLevel zerolog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		logLevel = zerolog.DebugLevel
	case "WARN":
		logLevel = zerolog.WarnLevel
	case "ERROR":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if strings.ToLower(format) == "json" {
		defaultLogger = New(os.Stderr)
	} else {
		defaultLogger = newConsole(os.Stderr)
	}
}

// New returns a JSON logger writing to w. Tests pass a buffer here.
func New(w io.Writer) *Logger {
	return &Logger{z: zerolog.New(w).With().Timestamp().Logger()}
}

func newConsole(w io.Writer) *Logger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return &Logger{z: zerolog.New(output).With().Timestamp().Logger()}
}

// With returns a child logger carrying the given key-value pairs on every
// event.
func (l *Logger) With(args ...interface{}) *Logger {
	ctx := l.z.With()
	for i := 0; i+1 < len(args); i += 2 {
		ctx = ctx.Interface(keyOf(args[i]), args[i+1])
	}
	return &Logger{z: ctx.Logger()}
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.emit(l.z.Debug(), msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.emit(l.z.Info(), msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.emit(l.z.Warn(), msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.emit(l.z.Error(), msg, args) }

func (l *Logger) emit(e *zerolog.Event, msg string, args []interface{}) {
	for i := 0; i+1 < len(args); i += 2 {
		e.Interface(keyOf(args[i]), args[i+1])
	}
	e.Msg(msg)
}

func keyOf(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
