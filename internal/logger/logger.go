// Package logger provides a small leveled logger that is constructed
// explicitly and passed into services. Nothing in this module logs through
// ambient global state.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// Level represents the logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name to a Level, defaulting to info.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger is the interface for logging operations.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
	SetLevel(level Level)
}

// standardLogger implements Logger on top of the standard log package.
type standardLogger struct {
	logger *log.Logger
	level  Level
}

// NewLogger creates a leveled logger writing to w.
func NewLogger(w io.Writer, level Level) Logger {
	return &standardLogger{
		logger: log.New(w, "", log.LstdFlags),
		level:  level,
	}
}

// NewNoOpLogger creates a logger that discards all output (useful for tests).
func NewNoOpLogger() Logger {
	return &standardLogger{
		logger: log.New(io.Discard, "", 0),
		level:  ErrorLevel + 1,
	}
}

func (l *standardLogger) SetLevel(level Level) { l.level = level }

func (l *standardLogger) Debug(format string, v ...any) { l.log(DebugLevel, format, v...) }
func (l *standardLogger) Info(format string, v ...any)  { l.log(InfoLevel, format, v...) }
func (l *standardLogger) Warn(format string, v ...any)  { l.log(WarnLevel, format, v...) }
func (l *standardLogger) Error(format string, v ...any) { l.log(ErrorLevel, format, v...) }

func (l *standardLogger) log(level Level, format string, v ...any) {
	if l.level > level {
		return
	}
	l.logger.Printf("[%s] %s", level.String(), fmt.Sprintf(format, v...))
}
