// Package log provides category-based structured logging on top of logrus.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Category groups related log messages.
type Category string

const (
	CatHTTP         Category = "http"         // Access log and handler failures
	CatDB           Category = "db"           // Pool, migrations and store operations
	CatRegistration Category = "registration" // Register, cancel, check-in, resize
	CatNotify       Category = "notify"       // Notification dispatch and delivery
	CatConfig       Category = "config"       // Configuration loading
	CatAuth         Category = "auth"         // Token verification
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Init configures level ("debug", "info", "warn", "error") and format
// ("text" or "json"). A nil writer keeps the current output.
func Init(level, format string, out io.Writer) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unsupported log format %q", format)
	}

	if out != nil {
		logger.SetOutput(out)
	}
	return nil
}

// Logger exposes the underlying logrus logger for integrations such as the
// http.Server ErrorLog.
func Logger() *logrus.Logger {
	return logger
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	entry(cat, fields).Debug(msg)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	entry(cat, fields).Info(msg)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	entry(cat, fields).Warn(msg)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	e := entry(cat, fields)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}

func entry(cat Category, fields []any) *logrus.Entry {
	f := logrus.Fields{"category": string(cat)}
	for i := 0; i+1 < len(fields); i += 2 {
		f[fmt.Sprint(fields[i])] = fields[i+1]
	}
	// Odd field count: keep the orphan key visible.
	if len(fields)%2 != 0 {
		f[fmt.Sprint(fields[len(fields)-1])] = "<missing>"
	}
	return logger.WithFields(f)
}
