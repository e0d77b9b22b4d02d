// Package tracing provides OpenTelemetry tracing for the firewall.
//
// Each API request gets a server span (HTTPMiddleware) and each evaluation
// a child span carrying the request fingerprint and the verdict. Spans are
// exported over OTLP/gRPC, or only recorded when the exporter is "none" so
// that trace IDs still reach logs and response headers.
//
// W3C Trace Context is propagated in both directions: an incoming
// traceparent header continues the caller's trace, and the trace ID is
// returned in the X-Trace-ID response header.
//
// # Sampling
//
// Three strategies are supported, all parent-based:
//   - always: sample every trace
//   - never: sample none
//   - ratio: sample a fraction of traces by trace ID
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "firewall.evaluate")
//	defer span.End()
package tracing
