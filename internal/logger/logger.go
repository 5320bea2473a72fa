// Package logger wraps charmbracelet/log with the field and formatter
// conventions shared across the orchestrator: structured key/value pairs,
// a component tag per package, and a JSON formatter when output is not
// human-facing.
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	cblog "github.com/charmbracelet/log"
)

// Options describes logger configuration supplied at creation time.
type Options struct {
	Level         string
	HumanReadable bool
	Writer        io.Writer
	Component     string
}

// Logger is a structured, leveled logger scoped to one component.
type Logger struct {
	base   *cblog.Logger
	fields []interface{}
}

// New creates a configured Logger instance based on Options.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}

	level := cblog.InfoLevel
	if opts.Level != "" {
		parsed, err := cblog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	logOpts := cblog.Options{
		Level:           level,
		ReportTimestamp: true,
	}
	if !opts.HumanReadable {
		logOpts.Formatter = cblog.JSONFormatter
	}

	base := cblog.NewWithOptions(writer, logOpts)

	var fields []interface{}
	if opts.Component != "" {
		fields = []interface{}{"component", opts.Component}
	}

	return &Logger{base: base, fields: fields}, nil
}

// With returns a derived logger that always writes the supplied fields in
// addition to any already attached.
func (l *Logger) With(fields ...interface{}) *Logger {
	if l == nil || l.base == nil || len(fields) == 0 {
		return l
	}

	next := make([]interface{}, 0, len(l.fields)+len(fields))
	next = append(next, l.fields...)
	next = append(next, fields...)

	return &Logger{base: l.base, fields: next}
}

// WithFields is equivalent to With but accepts a map, sorting keys for
// deterministic output.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil || l.base == nil || len(fields) == 0 {
		return l
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(fields)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}

	return l.With(args...)
}

// Debug writes a debug-level log entry.
func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.log(cblog.DebugLevel, msg, fields...)
}

// Info writes an informational log entry.
func (l *Logger) Info(msg string, fields ...interface{}) {
	l.log(cblog.InfoLevel, msg, fields...)
}

// Warn writes a warning level log entry.
func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.log(cblog.WarnLevel, msg, fields...)
}

// Error writes an error log entry including the supplied error context.
func (l *Logger) Error(err error, msg string, fields ...interface{}) {
	if err != nil {
		fields = append(fields, "error", err)
	}
	l.log(cblog.ErrorLevel, msg, fields...)
}

func (l *Logger) log(level cblog.Level, msg string, fields ...interface{}) {
	if l == nil || l.base == nil {
		return
	}

	payload := make([]interface{}, 0, len(l.fields)+len(fields))
	payload = append(payload, l.fields...)
	payload = append(payload, fields...)

	switch level {
	case cblog.DebugLevel:
		l.base.Debug(msg, payload...)
	case cblog.WarnLevel:
		l.base.Warn(msg, payload...)
	case cblog.ErrorLevel:
		l.base.Error(msg, payload...)
	default:
		l.base.Info(msg, payload...)
	}
}
