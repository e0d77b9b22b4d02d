package tracing

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"aegis-hq/firewall/pkg/telemetry/logging"
)

// Header set on responses so callers can correlate a verdict with its trace.
const TraceIDHeader = "X-Trace-ID"

// Propagator returns the configured text map propagator.
func Propagator() propagation.TextMapPropagator {
	return otel.GetTextMapPropagator()
}

// Extract extracts W3C trace context from HTTP headers.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return Propagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject injects trace context into HTTP headers.
func Inject(ctx context.Context, headers http.Header) {
	Propagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// HTTPMiddleware extracts incoming trace context, starts a server span per
// request, exposes the trace ID in the response header and adds the trace
// and span IDs to the logging context.
func HTTPMiddleware(tracer *Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tracer.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			ctx := Extract(r.Context(), r.Header)
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
			)
			defer span.End()
			SetHTTPAttributes(span, r.Method, r.URL.Path)

			if sc := span.SpanContext(); sc.IsValid() {
				w.Header().Set(TraceIDHeader, sc.TraceID().String())
				ctx = logging.WithTraceID(ctx, sc.TraceID().String())
				ctx = logging.WithSpanID(ctx, sc.SpanID().String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ValidateTraceParent validates the traceparent header format
// (version-trace_id-parent_id-trace_flags).
//
// Example: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
func ValidateTraceParent(traceparent string) bool {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return false
	}
	lengths := []int{2, 32, 16, 2}
	for i, part := range parts {
		if len(part) != lengths[i] || !isHexString(part) {
			return false
		}
	}
	return parts[1] != strings.Repeat("0", 32) && parts[2] != strings.Repeat("0", 16)
}

func isHexString(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
