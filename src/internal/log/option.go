package log

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogOption customizes the logger created by ChildLogger.
type LogOption func(l *zap.Logger) *zap.Logger

// WithFields adds fields that appear on every line logged by the child.
func WithFields(fields ...Field) LogOption {
	return func(l *zap.Logger) *zap.Logger {
		return l.With(fields...)
	}
}

// WithOptions applies arbitrary zap options to the child.
func WithOptions(opts ...zap.Option) LogOption {
	return func(l *zap.Logger) *zap.Logger {
		return l.WithOptions(opts...)
	}
}

// WithServerID generates an ID for this instance and adds it to every line
// logged by the child, so concurrent instances can be told apart.
func WithServerID() LogOption {
	id := uuid.NewString()
	return func(l *zap.Logger) *zap.Logger {
		return l.With(zap.String("serverID", id))
	}
}
