// Package scmlog provides structured logging shared by every component of
// the notifier/broker core, with the output-stream splitting and
// context-aware field builders used throughout this codebase.
package scmlog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// Level names accepted by Config.Level.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelFatal = "fatal"
)

// Config configures a Logger.
type Config struct {
	Level      string // debug|info|warn|error|fatal
	Format     string // "json" or "text"
	Service    string
	Version    string
	AddCaller  bool
	TimeFormat string
}

// DefaultConfig returns sensible production-adjacent defaults.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     "text",
		TimeFormat: time.RFC3339,
	}
}

// outputSplitter routes error-level records to stderr and everything else
// to stdout, so container log collectors can treat the two streams
// differently.
type outputSplitter struct{}

func (outputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// New creates a configured *logrus.Logger.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	switch cfg.Level {
	case LevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LevelError:
		logger.SetLevel(logrus.ErrorLevel)
	case LevelFatal:
		logger.SetLevel(logrus.FatalLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: cfg.TimeFormat})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: cfg.TimeFormat, FullTimestamp: true})
	}

	logger.SetReportCaller(cfg.AddCaller)
	logger.SetOutput(outputSplitter{})
	return logger
}

// ContextLogger is an immutable field-accumulating logger, built the same
// way request-scoped loggers are built throughout this codebase: each
// With* call returns a new value rather than mutating the receiver.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewContextLogger wraps logger (or a package default, if nil) with the
// given base fields.
func NewContextLogger(logger *logrus.Logger, fields map[string]any) *ContextLogger {
	if logger == nil {
		logger = Default
	}
	base := make(logrus.Fields, len(fields))
	for k, v := range fields {
		base[k] = v
	}
	return &ContextLogger{logger: logger, fields: base}
}

func (cl *ContextLogger) clone() logrus.Fields {
	f := make(logrus.Fields, len(cl.fields))
	for k, v := range cl.fields {
		f[k] = v
	}
	return f
}

func (cl *ContextLogger) WithField(key string, value any) *ContextLogger {
	f := cl.clone()
	f[key] = value
	return &ContextLogger{logger: cl.logger, fields: f}
}

func (cl *ContextLogger) WithFields(fields map[string]any) *ContextLogger {
	f := cl.clone()
	for k, v := range fields {
		f[k] = v
	}
	return &ContextLogger{logger: cl.logger, fields: f}
}

func (cl *ContextLogger) WithError(err error) *ContextLogger {
	return cl.WithField("error", err.Error())
}

type ctxKey string

const (
	ctxKeyComponent ctxKey = "component"
	ctxKeyParentID  ctxKey = "parent_id"
)

// WithComponent tags the returned context so loggers derived from it via
// WithContext pick up the component name automatically.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ctxKeyComponent, component)
}

// WithParentID tags ctx with the publicID of the notifier's affected
// parent, for correlating log lines across a replay or a dbstore batch.
func WithParentID(ctx context.Context, parentID string) context.Context {
	return context.WithValue(ctx, ctxKeyParentID, parentID)
}

// WithContext pulls correlation fields (component, parent_id) out of ctx.
func (cl *ContextLogger) WithContext(ctx context.Context) *ContextLogger {
	f := cl.clone()
	if v := ctx.Value(ctxKeyComponent); v != nil {
		f["component"] = v
	}
	if v := ctx.Value(ctxKeyParentID); v != nil {
		f["parent_id"] = v
	}
	return &ContextLogger{logger: cl.logger, fields: f}
}

func (cl *ContextLogger) Debug(msg string)                          { cl.logger.WithFields(cl.fields).Debug(msg) }
func (cl *ContextLogger) Debugf(format string, args ...any)         { cl.logger.WithFields(cl.fields).Debugf(format, args...) }
func (cl *ContextLogger) Info(msg string)                            { cl.logger.WithFields(cl.fields).Info(msg) }
func (cl *ContextLogger) Infof(format string, args ...any)          { cl.logger.WithFields(cl.fields).Infof(format, args...) }
func (cl *ContextLogger) Warn(msg string)                            { cl.logger.WithFields(cl.fields).Warn(msg) }
func (cl *ContextLogger) Warnf(format string, args ...any)          { cl.logger.WithFields(cl.fields).Warnf(format, args...) }
func (cl *ContextLogger) Error(msg string)                           { cl.logger.WithFields(cl.fields).Error(msg) }
func (cl *ContextLogger) Errorf(format string, args ...any)         { cl.logger.WithFields(cl.fields).Errorf(format, args...) }

// Default is the package-level logger used when no explicit logger is
// threaded through. Services normally replace it at startup via SetDefault.
var Default = New(DefaultConfig())

// SetDefault replaces the package-level default logger.
func SetDefault(l *logrus.Logger) { Default = l }

// ServiceLogger returns a ContextLogger pre-tagged with service metadata.
func ServiceLogger(service, version string) *ContextLogger {
	return NewContextLogger(Default, map[string]any{"service": service, "version": version})
}

// LogOperation times fn, logging its start, duration, and outcome.
func LogOperation(logger *ContextLogger, operation string, fn func() error) error {
	start := time.Now()
	logger.WithField("operation", operation).Debug("operation started")

	err := fn()
	duration := time.Since(start)
	entry := logger.WithFields(map[string]any{
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		entry.WithError(err).Error("operation failed")
		return err
	}
	entry.Debug("operation completed")
	return nil
}

// LogPanic recovers from a panic and logs it with a stack trace. Intended
// to be deferred at goroutine boundaries that must not crash the process,
// e.g. the broker's per-notifier dispatch loop.
func LogPanic(logger *ContextLogger) {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		logger.WithFields(map[string]any{
			"panic":      fmt.Sprintf("%v", r),
			"stacktrace": string(buf[:n]),
		}).Error("panic recovered")
	}
}
