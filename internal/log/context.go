package log

import "context"

type ctxKey struct{}

// WithContext stores l in ctx for handlers further down the chain
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext never returns nil; with nothing stored it hands out the no-op logger.
func FromContext(ctx context.Context) Logger {
	l, _ := ctx.Value(ctxKey{}).(Logger)
	if l == nil {
		return Nop()
	}
	return l
}
