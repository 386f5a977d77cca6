package xrepo

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type queryIDKey struct{}

// WithQueryID returns a context carrying id. Repository calls generate one
// when the context has none; engines log it with every statement.
func WithQueryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, queryIDKey{}, id)
}

// QueryID returns the query id carried by ctx, or "".
func QueryID(ctx context.Context) string {
	id, _ := ctx.Value(queryIDKey{}).(string)
	return id
}

func ensureQueryID(ctx context.Context) context.Context {
	if QueryID(ctx) != "" {
		return ctx
	}
	return WithQueryID(ctx, uuid.New().String())
}

// loggerFor adds the query id of ctx to l.
func loggerFor(ctx context.Context, l *slog.Logger) *slog.Logger {
	id := QueryID(ctx)
	if id == "" {
		return l
	}
	return l.With("query_id", id)
}
