package server

import (
	"net/http"
	"strings"
	"time"

	"aegis-hq/firewall/pkg/server/middleware"
	"aegis-hq/firewall/pkg/server/types"
	"aegis-hq/firewall/pkg/telemetry/health"
	"aegis-hq/firewall/pkg/telemetry/tracing"
)

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "POST /v1/evaluate", s.handleEvaluate)
	s.handle(mux, "GET /v1/policy/mode", s.handleGetMode)
	s.handle(mux, "PUT /v1/policy/mode", s.handleSetMode)
	s.handle(mux, "GET /v1/policy/modes", s.handleListModes)
	s.handle(mux, "POST /v1/outcomes", s.handleOutcome)
	s.handle(mux, "GET /v1/audit/records", s.handleAuditRecords)
	s.handle(mux, "GET /v1/audit/records/{id}", s.handleAuditRecord)
	s.handle(mux, "GET /v1/audit/stats", s.handleAuditStats)
	s.handle(mux, "GET /v1/audit/verify", s.handleAuditVerify)
	s.handle(mux, "GET /v1/learning/stats", s.handleLearningStats)
	s.handle(mux, "DELETE /v1/learning/thresholds/{mode}", s.handleResetThresholds)
	s.handle(mux, "GET /v1/stats", s.handleStats)
	s.handle(mux, "POST /v1/benchmark", s.handleBenchmark)

	health.Register(mux, s.opts.Health, s.opts.Version, s.opts.Commit, s.opts.BuildTime)
	if s.opts.Metrics.Enabled() {
		mux.Handle("GET "+s.opts.MetricsPath, s.opts.Metrics.Handler())
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		types.NewErrorResponse("No route for "+r.Method+" "+r.URL.Path, types.ErrorTypeNotFound, "", "").Write(w)
	})

	// Innermost first.
	var handler http.Handler = mux
	handler = middleware.BodyLimitMiddleware(s.config.MaxBodyBytes)(handler)
	if rl := s.config.RateLimit; rl.Enabled && rl.RequestsPerSecond > 0 {
		limiter := middleware.NewClientLimiter(rl.RequestsPerSecond, rl.Burst, 0)
		handler = middleware.RateLimitMiddleware(limiter, s.opts.Metrics.RecordRateLimited)(handler)
	}
	handler = tracing.HTTPMiddleware(s.opts.Tracer)(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)
	return handler
}

// handle registers h under pattern and records per-route request metrics.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	if !s.opts.Metrics.Enabled() {
		mux.HandleFunc(pattern, h)
		return
	}
	route := pattern
	if _, path, ok := strings.Cut(pattern, " "); ok {
		route = path
	}
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw, status := middleware.StatusRecorder(w)
		h(rw, r)
		s.opts.Metrics.RecordHTTPRequest(route, r.Method, status(), time.Since(start))
	})
}
