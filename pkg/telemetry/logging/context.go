package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// EvaluationIDKey is the context key for evaluation IDs.
	EvaluationIDKey contextKey = "evaluation_id"

	// ModeKey is the context key for the policy mode in effect.
	ModeKey contextKey = "mode"

	// ActionKey is the context key for the intended action under evaluation.
	ActionKey contextKey = "action"

	// ClientKey is the context key for the calling client address.
	ClientKey contextKey = "client"

	// TraceIDKey is the context key for trace IDs.
	TraceIDKey contextKey = "trace_id"

	// SpanIDKey is the context key for span IDs.
	SpanIDKey contextKey = "span_id"
)

// contextFields lists the keys extracted into log records, in output order.
var contextFields = []contextKey{
	RequestIDKey,
	EvaluationIDKey,
	ModeKey,
	ActionKey,
	ClientKey,
	TraceIDKey,
	SpanIDKey,
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

// WithEvaluationID adds an evaluation ID to the context.
func WithEvaluationID(ctx context.Context, evaluationID string) context.Context {
	return context.WithValue(ctx, EvaluationIDKey, evaluationID)
}

// GetEvaluationID retrieves the evaluation ID from the context.
func GetEvaluationID(ctx context.Context) string {
	return getString(ctx, EvaluationIDKey)
}

// WithMode adds the policy mode to the context.
func WithMode(ctx context.Context, mode string) context.Context {
	return context.WithValue(ctx, ModeKey, mode)
}

// GetMode retrieves the policy mode from the context.
func GetMode(ctx context.Context) string {
	return getString(ctx, ModeKey)
}

// WithAction adds the intended action to the context.
func WithAction(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, ActionKey, action)
}

// GetAction retrieves the intended action from the context.
func GetAction(ctx context.Context) string {
	return getString(ctx, ActionKey)
}

// WithClient adds the client address to the context.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, ClientKey, client)
}

// GetClient retrieves the client address from the context.
func GetClient(ctx context.Context) string {
	return getString(ctx, ClientKey)
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	return getString(ctx, TraceIDKey)
}

// WithSpanID adds a span ID to the context.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, SpanIDKey, spanID)
}

// GetSpanID retrieves the span ID from the context.
func GetSpanID(ctx context.Context) string {
	return getString(ctx, SpanIDKey)
}

func getString(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// extractContextFields returns the context's log fields as key-value pairs
// suitable for logger.With().
func extractContextFields(ctx context.Context) []any {
	var fields []any
	for _, a := range contextAttrs(ctx) {
		fields = append(fields, a.Key, a.Value.String())
	}
	return fields
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, key := range contextFields {
		if v := getString(ctx, key); v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}
