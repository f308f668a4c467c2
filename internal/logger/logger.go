// Package logger holds the process-wide structured logger for the
// quality-check tool. Entries are JSON so runs can be correlated by
// field (check, image, run_id) once the output is collected.
package logger

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the shared instance. QC_LOG_LEVEL selects the level
// (trace, debug, info, warn, error); anything else means info.
var Logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	})

	level, err := logrus.ParseLevel(os.Getenv("QC_LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	return l
}

// WithCheck tags an entry with the quality check it belongs to.
func WithCheck(name string) *logrus.Entry {
	return Logger.WithField("check", name)
}

// WithFields creates a new entry with the given fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithField creates a new entry with a single field
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithError creates a new entry with an error field
func WithError(err error) *logrus.Entry {
	return Logger.WithError(err)
}

// Info logs an info message
func Info(msg string) {
	Logger.Info(msg)
}

// Error logs an error message
func Error(msg string) {
	Logger.Error(msg)
}

// Debug logs a debug message
func Debug(msg string) {
	Logger.Debug(msg)
}

// Warn logs a warning message
func Warn(msg string) {
	Logger.Warn(msg)
}
