// Package middleware provides HTTP middleware for the firewall API.
//
// # Middleware Chain
//
// The server wraps its router in this order (outermost first):
//
//	Recovery → Logging → RequestID → tracing → RateLimit → BodyLimit → router
//
// The middleware functions are:
//   - RecoveryMiddleware: recover from panics, return a JSON 500 error
//   - LoggingMiddleware: log method, path, status and latency per request
//   - RequestIDMiddleware: assign X-Request-ID and add it to the logging
//     context
//   - RateLimitMiddleware: per-client token buckets (golang.org/x/time/rate)
//     kept in a bounded LRU, 429 with Retry-After when exhausted
//   - BodyLimitMiddleware: cap request bodies, 413 when exceeded
//
// Tracing is provided by tracing.HTTPMiddleware.
//
// Every error response uses the types.ErrorResponse envelope:
//
//	{"error": {"message": "Rate limit exceeded", "type": "rate_limit_exceeded"}}
package middleware
