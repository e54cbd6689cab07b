// Package logger provides component-scoped structured logging for the
// lancer services, backed by logrus.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry bound to a component name.
type Logger struct {
	entry *logrus.Entry
}

// Config holds logger configuration.
type Config struct {
	Component string
	Level     string // debug, info, warn, error; empty means info
	JSON      bool
}

// New creates a logger for the given configuration.
func New(cfg Config) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	if cfg.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	return &Logger{entry: l.WithField("component", cfg.Component)}
}

// NewDefault creates a logger for a component with the level taken from the
// LOG_LEVEL environment variable.
func NewDefault(component string) *Logger {
	return New(Config{
		Component: component,
		Level:     os.Getenv("LOG_LEVEL"),
		JSON:      os.Getenv("LOG_FORMAT") == "json",
	})
}

// WithField returns a logger with an extra structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// Fatalf logs and exits with a non-zero status. Reserved for unrecoverable
// configuration failures at process start.
func (l *Logger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }
