// Package server exposes the decision firewall over HTTP.
//
// The server wraps a service.Service and serves a small JSON API:
//
//	POST /v1/evaluate              evaluate one AI output
//	GET  /v1/policy/mode           active policy configuration
//	PUT  /v1/policy/mode           switch the active mode
//	GET  /v1/policy/modes          every available mode
//	POST /v1/outcomes              report a human decision (202)
//	GET  /v1/audit/records         query the audit trail
//	GET  /v1/audit/records/{id}    one audit record by evaluation ID
//	GET  /v1/audit/stats           aggregate audit statistics
//	GET  /v1/audit/verify          verify the audit hash chain
//	GET  /v1/learning/stats        outcome learner state
//	GET  /v1/stats                 runtime verdict counters
//	POST /v1/benchmark             run the hallucination benchmark
//
// /health, /ready and /version are mounted from the health package, and the
// Prometheus endpoint is served at the configured metrics path.
//
// Errors use a single JSON envelope (see types.ErrorResponse). Malformed
// bodies get 400, oversized bodies 413, requests the firewall cannot
// evaluate 422, and disabled components 503.
//
// # Lifecycle
//
//	srv, err := server.New(cfg.Server, server.Options{Service: svc, Audit: store})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx) // returns after ctx is done and shutdown completes
package server
