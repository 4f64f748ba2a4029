package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the global logger instance
var Logger *slog.Logger

// LogOptions configures the global logger
type LogOptions struct {
	Production bool
	Level      slog.Level
	// FilePath enables a rotated log file in addition to stdout
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// InitLogger initializes the global logger with the appropriate handler
// For production, use JSON format; for development, use text format
func InitLogger(production bool) {
	InitLoggerWithOptions(LogOptions{Production: production, Level: slog.LevelInfo})
}

// InitLoggerWithLevel initializes the logger with a specific log level
func InitLoggerWithLevel(production bool, level slog.Level) {
	InitLoggerWithOptions(LogOptions{Production: production, Level: level})
}

// InitLoggerWithOptions initializes the logger, optionally teeing into a rotated file
func InitLoggerWithOptions(o LogOptions) {
	var out io.Writer = os.Stdout
	if o.FilePath != "" {
		out = io.MultiWriter(os.Stdout, newRotatingFile(o))
	}
	Logger = slog.New(newHandler(out, o.Production, o.Level))
	slog.SetDefault(Logger)
}

func newRotatingFile(o LogOptions) io.Writer {
	maxSize, maxBackups, maxAge := o.MaxSizeMB, o.MaxBackups, o.MaxAgeDays
	if maxSize <= 0 {
		maxSize = 100
	}
	if maxBackups <= 0 {
		maxBackups = 7
	}
	if maxAge <= 0 {
		maxAge = 30
	}
	return &lumberjack.Logger{
		Filename:   o.FilePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   true,
	}
}

func newHandler(w io.Writer, production bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
	}
	if production {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps a LOG_LEVEL string to a slog level, defaulting to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext returns a logger with context fields
func WithContext(ctx context.Context) *slog.Logger {
	if Logger == nil {
		InitLogger(false)
	}
	return Logger
}

// Info logs an info message
func Info(msg string, args ...any) {
	if Logger == nil {
		InitLogger(false)
	}
	Logger.Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	if Logger == nil {
		InitLogger(false)
	}
	Logger.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	if Logger == nil {
		InitLogger(false)
	}
	Logger.Error(msg, args...)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	if Logger == nil {
		InitLogger(false)
	}
	Logger.Debug(msg, args...)
}

// Fatal logs an error message and exits
func Fatal(msg string, args ...any) {
	if Logger == nil {
		InitLogger(false)
	}
	Logger.Error(msg, args...)
	os.Exit(1)
}

// WithSymbol returns a logger with symbol field
func WithSymbol(symbol string) *slog.Logger {
	if Logger == nil {
		InitLogger(false)
	}
	return Logger.With("symbol", symbol)
}

// WithComponent returns a logger tagged with the pipeline component name
func WithComponent(component string) *slog.Logger {
	if Logger == nil {
		InitLogger(false)
	}
	return Logger.With("component", component)
}

// WithError returns a logger with error field
func WithError(err error) *slog.Logger {
	if Logger == nil {
		InitLogger(false)
	}
	return Logger.With("error", err)
}
