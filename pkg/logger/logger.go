// Package logger provides structured logging for the exchange layer.
//
// All services receive a *Logger scoped to their component name. Output is
// JSON so log aggregators can index fields without parsing message text.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Fields is an alias for logrus.Fields.
type Fields = logrus.Fields

// Logger wraps a logrus entry scoped to a component.
type Logger struct {
	entry *logrus.Entry
}

// Options controls logger construction.
type Options struct {
	// Level is the minimum level to emit ("debug", "info", "warn", "error").
	// Defaults to "info".
	Level string

	// File, when set, writes rotated logs to the given path in addition to
	// stderr.
	File string

	// MaxSizeMB is the rotation threshold for File. Defaults to 100.
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep. Defaults to 5.
	MaxBackups int
}

// New constructs a component-scoped logger with the given options.
func New(component string, opts Options) *Logger {
	base := logrus.New()
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	level := strings.ToLower(strings.TrimSpace(opts.Level))
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if parsed, err := logrus.ParseLevel(level); err == nil {
		base.SetLevel(parsed)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}

	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 5
		}
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
		}
		base.SetOutput(io.MultiWriter(os.Stderr, rotated))
	}

	return &Logger{entry: base.WithField("component", component)}
}

// NewDefault constructs a logger for a component with default options.
func NewDefault(component string) *Logger {
	return New(component, Options{})
}

// NewNop constructs a logger that discards all output. Intended for tests.
func NewNop() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{entry: logrus.NewEntry(base)}
}

// WithField returns a logger with an additional field attached.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a logger with additional fields attached.
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// Debug logs at debug level.
func (l *Logger) Debug(args ...interface{}) { l.entry.Debug(args...) }

// Info logs at info level.
func (l *Logger) Info(args ...interface{}) { l.entry.Info(args...) }

// Warn logs at warning level.
func (l *Logger) Warn(args ...interface{}) { l.entry.Warn(args...) }

// Error logs at error level.
func (l *Logger) Error(args ...interface{}) { l.entry.Error(args...) }

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

// Warnf logs a formatted message at warning level.
func (l *Logger) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
