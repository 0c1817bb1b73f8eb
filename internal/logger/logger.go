// Package logger wraps log/slog with the console/JSON dual format and the
// context-correlation helpers used across the gateway.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"time"

	"log/slog"

	"github.com/lmittmann/tint"
)

// instanceID correlates logs across replicas of this process.
var instanceID string

func init() {
	instanceID = os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = os.Getenv("HOSTNAME")
	}
	if instanceID == "" {
		b := make([]byte, 4)
		rand.Read(b) //nolint:errcheck
		instanceID = hex.EncodeToString(b)
	}
}

// GetInstanceID returns the instance ID stamped on every log record.
func GetInstanceID() string {
	return instanceID
}

// Config controls how a Logger renders records.
type Config struct {
	Level  slog.Level
	Format string // "text" or "json"
}

type contextKey string

const (
	// ContextKeyRequestID is the key for a request's correlation ID.
	ContextKeyRequestID contextKey = "request_id"
	// ContextKeyOperation is the key for the current logical operation.
	ContextKeyOperation contextKey = "operation"
)

// Logger wraps slog.Logger with the gateway's conventions.
type Logger struct {
	*slog.Logger
}

// New builds a Logger per Config.
func New(cfg Config) *Logger {
	if cfg.Format == "json" {
		opts := &slog.HandlerOptions{
			Level:     cfg.Level,
			AddSource: true,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.Attr{Key: a.Key, Value: slog.StringValue(a.Value.Time().Format(time.RFC3339))}
				}
				return a
			},
		}
		return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stdout, opts)).With(slog.String("instance_id", instanceID))}
	}

	opts := &tint.Options{
		Level:      cfg.Level,
		AddSource:  true,
		TimeFormat: time.Kitchen,
	}
	return &Logger{Logger: slog.New(tint.NewHandler(os.Stdout, opts)).With(slog.String("instance_id", instanceID))}
}

// FromEnv builds a Config from LOG_LEVEL/LOG_FORMAT/APP_ENV conventions.
func FromEnv(logLevel, logFormat string) Config {
	cfg := Config{Level: slog.LevelInfo, Format: "text"}

	switch logLevel {
	case "debug":
		cfg.Level = slog.LevelDebug
	case "info":
		cfg.Level = slog.LevelInfo
	case "warn":
		cfg.Level = slog.LevelWarn
	case "error":
		cfg.Level = slog.LevelError
	}

	if logFormat != "" {
		cfg.Format = logFormat
	}
	if os.Getenv("APP_ENV") == "production" {
		cfg.Format = "json"
	}

	return cfg
}

// WithContext pulls correlation attributes out of ctx onto the logger.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	lg := l.Logger

	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok && requestID != "" {
		lg = lg.With(slog.String("request_id", requestID))
	}
	if op, ok := ctx.Value(ContextKeyOperation).(string); ok && op != "" {
		lg = lg.With(slog.String("operation", op))
	}

	return &Logger{Logger: lg}
}

// WithComponent tags every record from this logger with a component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With(slog.String("component", component))}
}

// WithRequestID adds a request ID to ctx for later WithContext calls.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithOperation adds an operation name to ctx for later WithContext calls.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, ContextKeyOperation, operation)
}

// GenerateRequestID returns a short random hex correlation ID.
func GenerateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b) //nolint:errcheck
	return hex.EncodeToString(b)
}
