// Package log provides context-scoped structured logging.
//
// A logger travels in the context.Context; every log line is emitted through
// the logger extracted from the context passed to Debug/Info/Error.  Loggers
// are named hierarchically with ChildLogger, so a line's logger name records
// where about in the stack it came from.
package log

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a strongly-typed log field.
type Field = zap.Field

type logContextKey struct{}

var (
	makeGlobalOnce sync.Once
	globalLogger   *zap.Logger
)

// global returns the process-wide logger, building it on first use.  It logs
// JSON to stderr; setting LOG_LEVEL=debug in the environment enables debug
// output.
func global() *zap.Logger {
	makeGlobalOnce.Do(func() {
		level := zapcore.InfoLevel
		if os.Getenv("LOG_LEVEL") == "debug" {
			level = zapcore.DebugLevel
		}
		cfg := zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "severity",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
		core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(os.Stderr), level)
		globalLogger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	})
	return globalLogger
}

// AddLogger returns a context carrying the process-wide logger.  Roots of the
// program (main, test setup) call this once; everything else derives from it.
func AddLogger(ctx context.Context) context.Context {
	return withLogger(ctx, global())
}

func withLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, logContextKey{}, l)
}

func extractLogger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(logContextKey{}).(*zap.Logger); ok {
		return l
	}
	return global()
}

// ChildLogger returns a context whose logger is a named child of the logger
// in ctx.  The name can be empty to only apply options.
func ChildLogger(ctx context.Context, name string, opts ...LogOption) context.Context {
	l := extractLogger(ctx)
	if name != "" {
		l = l.Named(name)
	}
	for _, opt := range opts {
		l = opt(l)
	}
	return withLogger(ctx, l)
}

// Debug logs a message at debug level, with the logger in ctx.
func Debug(ctx context.Context, msg string, fields ...Field) {
	extractLogger(ctx).Debug(msg, fields...)
}

// Info logs a message at info level, with the logger in ctx.
func Info(ctx context.Context, msg string, fields ...Field) {
	extractLogger(ctx).Info(msg, fields...)
}

// Error logs a message at error level, with the logger in ctx.
func Error(ctx context.Context, msg string, fields ...Field) {
	extractLogger(ctx).Error(msg, fields...)
}

// ContextInfo is a Field noting the liveness of ctx; mostly interesting when
// a span ends because its context was cancelled or timed out.
func ContextInfo(ctx context.Context) Field {
	return zap.Object("context", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		if err := ctx.Err(); err != nil {
			enc.AddString("err", err.Error())
		}
		if d, ok := ctx.Deadline(); ok {
			enc.AddTime("deadline", d)
		}
		return nil
	}))
}
