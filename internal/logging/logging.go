// Package logging provides structured logging with trace ID propagation.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type traceIDKey struct{}

// Logger is a logrus logger bound to a service name.
type Logger struct {
	*logrus.Logger
	service string
}

// Config configures a Logger.
type Config struct {
	Service string
	Level   string // debug, info, warn, error
	Format  string // json or text
	Output  io.Writer
}

// New creates a Logger from cfg. Unknown levels fall back to info.
func New(cfg Config) *Logger {
	l := logrus.New()

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	l.SetOutput(out)

	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	return &Logger{Logger: l, service: cfg.Service}
}

// NewDefault creates a JSON, info-level logger writing to stdout.
func NewDefault(service string) *Logger {
	return New(Config{Service: service})
}

// Service returns the service name attached to every entry.
func (l *Logger) Service() string {
	return l.service
}

// Entry returns an entry carrying the service name and, when present, the
// trace ID stored in ctx.
func (l *Logger) Entry(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if ctx == nil {
		return entry
	}
	if traceID := TraceID(ctx); traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	return entry
}

// RequestRecord describes one completed HTTP request.
type RequestRecord struct {
	Method   string
	Path     string
	Status   int
	Bytes    int64
	Client   string
	Duration time.Duration
}

// LogRequest writes rec at a level chosen by its status: error for 5xx,
// warn for 4xx, info otherwise.
func (l *Logger) LogRequest(ctx context.Context, rec RequestRecord) {
	entry := l.Entry(ctx).WithFields(logrus.Fields{
		"method":      rec.Method,
		"path":        rec.Path,
		"status":      rec.Status,
		"bytes":       rec.Bytes,
		"client":      rec.Client,
		"duration_ms": rec.Duration.Milliseconds(),
	})
	switch {
	case rec.Status >= 500:
		entry.Error("http request")
	case rec.Status >= 400:
		entry.Warn("http request")
	default:
		entry.Info("http request")
	}
}

// LogSecurityEvent logs an event relevant to abuse detection.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.Entry(ctx).WithFields(logrus.Fields(fields)).WithField("security_event", event).Warn("security event")
}

// NewTraceID returns a fresh trace ID.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores traceID in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceID returns the trace ID stored in ctx, or "".
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return ""
}
