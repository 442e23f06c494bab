package logctx

import (
	"context"

	"github.com/caffeinepub/kodinar-bazaar/internal/observability"
)

type key struct{}

// With attaches logger to ctx. The HTTP and worker middlewares call it once
// per request or event; later layers only read.
func With(ctx context.Context, logger observability.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, key{}, logger)
}

func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	if l, ok := ctx.Value(key{}).(observability.Logger); ok {
		return l
	}
	return nil
}

// FromOr prefers the request-scoped logger, then fallback, then a no-op logger.
func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if l := From(ctx); l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return observability.NopLogger()
}
