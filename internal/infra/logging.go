package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// Logger writes structured log entries tagged with the service name and,
// when present in the context, the request correlation id.
type Logger struct {
	sugar *zap.SugaredLogger
}

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	Level       string
	Development bool
}

// NewLogger builds a JSON logger writing to out.
func NewLogger(out io.Writer, service string, opts ...LoggerOptions) *Logger {
	if out == nil {
		out = io.Discard
	}
	var o LoggerOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.MessageKey = "message"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)
	if o.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), parseLevel(o.Level))
	base := zap.New(core)
	if service = strings.TrimSpace(service); service != "" {
		base = base.With(zap.String("service", service))
	}
	return &Logger{sugar: base.Sugar()}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithCorrelationID stores a request correlation id in ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDKey, strings.TrimSpace(id))
}

// CorrelationIDFromContext returns the correlation id stored in ctx, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

func (l *Logger) Printf(ctx context.Context, format string, v ...any) {
	if l == nil {
		return
	}
	l.with(ctx).Info(fmt.Sprintf(format, v...))
}

func (l *Logger) Println(ctx context.Context, v ...any) {
	if l == nil {
		return
	}
	l.with(ctx).Info(strings.TrimSpace(fmt.Sprintln(v...)))
}

// Infow logs a message with structured key/value pairs.
func (l *Logger) Infow(ctx context.Context, msg string, keysAndValues ...any) {
	if l == nil {
		return
	}
	l.with(ctx).Infow(msg, keysAndValues...)
}

// Errorw logs an error message with structured key/value pairs.
func (l *Logger) Errorw(ctx context.Context, msg string, keysAndValues ...any) {
	if l == nil {
		return
	}
	l.with(ctx).Errorw(msg, keysAndValues...)
}

func (l *Logger) Fatalf(ctx context.Context, format string, v ...any) {
	if l == nil {
		os.Exit(1)
	}
	l.with(ctx).Errorf(format, v...)
	_ = l.sugar.Sync()
	os.Exit(1)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.sugar.Sync()
}

func (l *Logger) with(ctx context.Context) *zap.SugaredLogger {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return l.sugar.With("trace_id", id)
	}
	return l.sugar
}
