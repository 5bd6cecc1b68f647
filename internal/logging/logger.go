// Package logging provides structured logging for the DrawGuess sync backend.
//
// The package keeps a process-wide logger configured once at startup.
// Call sites pass a message and an optional field map; output is one
// JSON object per line.
package logging

import (
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	global *logrus.Logger
	once   sync.Once
)

// Init initializes the global logger. Subsequent calls are ignored.
func Init(out io.Writer, level string) {
	once.Do(func() {
		l := logrus.New()
		l.SetOutput(out)
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
		l.SetLevel(parseLevel(level))
		global = l
	})
}

// Get returns the global logger, initializing it with defaults if needed.
func Get() *logrus.Logger {
	if global == nil {
		Init(logrus.StandardLogger().Out, "info")
	}
	return global
}

func parseLevel(level string) logrus.Level {
	l, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}

// Debug logs a debug message with optional structured fields.
func Debug(message string, fields map[string]interface{}) {
	Get().WithFields(logrus.Fields(fields)).Debug(message)
}

// Info logs an info message with optional structured fields.
func Info(message string, fields map[string]interface{}) {
	Get().WithFields(logrus.Fields(fields)).Info(message)
}

// Warn logs a warning message with optional structured fields.
func Warn(message string, fields map[string]interface{}) {
	Get().WithFields(logrus.Fields(fields)).Warn(message)
}

// Error logs an error message with optional structured fields.
func Error(message string, err error, fields map[string]interface{}) {
	entry := Get().WithFields(logrus.Fields(fields))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}

// ErrorWithCode logs an error tagged with an application error code.
func ErrorWithCode(message string, code string, err error, fields map[string]interface{}) {
	entry := Get().WithFields(logrus.Fields(fields)).WithField("error_code", code)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}
