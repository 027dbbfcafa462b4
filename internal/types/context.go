package types

import (
	"context"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// WithTraceID stores the trace ID in the context. Trace IDs originate either
// from an incoming ops request or from the queue envelope of the job being
// processed, and are propagated onto outbound HTTP calls.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// GetTraceID retrieves the trace ID from the context, or "" if unset.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
