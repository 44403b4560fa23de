package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the process-wide logger. It discards everything until Init is called.
var Log = zerolog.Nop()

type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Field attaches a structured value to a log event.
type Field func(e *zerolog.Event) *zerolog.Event

func Init(level string, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}

	Log = zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Console wraps w in a human readable writer for local development.
func Console(w io.Writer) io.Writer {
	if w == nil {
		w = os.Stdout
	}
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
}

func parseLevel(level string) zerolog.Level {
	switch Level(level) {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func emit(e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		e = f(e)
	}
	e.CallerSkipFrame(2).Msg(msg)
}

func Debug(msg string, fields ...Field) {
	emit(Log.Debug(), msg, fields)
}

func Info(msg string, fields ...Field) {
	emit(Log.Info(), msg, fields)
}

func Warn(msg string, fields ...Field) {
	emit(Log.Warn(), msg, fields)
}

func Error(msg string, fields ...Field) {
	emit(Log.Error(), msg, fields)
}

func Err(err error) Field {
	return func(e *zerolog.Event) *zerolog.Event { return e.Err(err) }
}

func String(key, value string) Field {
	return func(e *zerolog.Event) *zerolog.Event { return e.Str(key, value) }
}

func Int(key string, value int) Field {
	return func(e *zerolog.Event) *zerolog.Event { return e.Int(key, value) }
}

func Int64(key string, value int64) Field {
	return func(e *zerolog.Event) *zerolog.Event { return e.Int64(key, value) }
}

func Float64(key string, value float64) Field {
	return func(e *zerolog.Event) *zerolog.Event { return e.Float64(key, value) }
}

func Bool(key string, value bool) Field {
	return func(e *zerolog.Event) *zerolog.Event { return e.Bool(key, value) }
}

func Duration(key string, value time.Duration) Field {
	return func(e *zerolog.Event) *zerolog.Event { return e.Dur(key, value) }
}

func Any(key string, value any) Field {
	return func(e *zerolog.Event) *zerolog.Event { return e.Interface(key, value) }
}
