// Package logging wraps log/slog with the small surface the worker needs:
// leveled structured logging, JSON or text output, optional file sink, and
// component-scoped sub-loggers.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Config holds logging configuration.
type Config struct {
	Level      string // "debug", "info", "warn", "error"
	Format     string // "json" or "text"
	Output     string // "stdout", "stderr", or a file path
	EnableFile bool
	FilePath   string
}

// DefaultConfig returns sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
}

// Field is a typed key/value pair attached to a log line.
type Field = slog.Attr

func String(k, v string) Field                 { return slog.String(k, v) }
func Int(k string, v int) Field                { return slog.Int(k, v) }
func Int64(k string, v int64) Field            { return slog.Int64(k, v) }
func Float64(k string, v float64) Field        { return slog.Float64(k, v) }
func Bool(k string, v bool) Field              { return slog.Bool(k, v) }
func Duration(k string, v time.Duration) Field { return slog.Duration(k, v) }

// Err wraps an error value; nil-safe.
func Err(err error) Field {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// RecordID tags a log line with the food record being processed.
func RecordID(id int64) Field { return slog.Int64("record_id", id) }

// Logger provides structured logging with component scoping.
type Logger struct {
	sl   *slog.Logger
	file *os.File
}

// New creates a logger from config. The returned logger owns the file handle
// (if any); call Close on shutdown.
func New(cfg Config) (*Logger, error) {
	var writer io.Writer
	var file *os.File

	switch cfg.Output {
	case "", "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := openLogFile(cfg.Output)
		if err != nil {
			return nil, err
		}
		writer = f
		file = f
	}

	if cfg.EnableFile && cfg.FilePath != "" && file == nil {
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		writer = io.MultiWriter(writer, f)
		file = f
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}

	return &Logger{sl: slog.New(handler), file: file}, nil
}

// NewNop returns a logger that discards everything. For tests.
func NewNop() *Logger {
	return &Logger{sl: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return f, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a sub-logger tagged with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{sl: l.sl.With(slog.String("component", name)), file: l.file}
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.sl.LogAttrs(context.Background(), slog.LevelDebug, msg, fields...)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.sl.LogAttrs(context.Background(), slog.LevelInfo, msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.sl.LogAttrs(context.Background(), slog.LevelWarn, msg, fields...)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.sl.LogAttrs(context.Background(), slog.LevelError, msg, fields...)
}

// Close releases the file sink, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
