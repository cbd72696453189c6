package logger

import (
	"context"

	"go.uber.org/zap"
)

type contextKey struct{}

// WithContext stores a request-scoped logger on the context.
func WithContext(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// FromContext retrieves the request-scoped logger, falling back to the global
// one when the middleware never ran.
func FromContext(ctx context.Context) *zap.Logger {
	if log, ok := ctx.Value(contextKey{}).(*zap.Logger); ok {
		return log
	}
	return Get()
}
