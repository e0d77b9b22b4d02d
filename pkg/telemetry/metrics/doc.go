// Package metrics provides Prometheus metrics for the firewall.
//
// # Metrics Categories
//
//   - Evaluation metrics: verdicts, latency, risk distribution, decisive
//     rules, failed checks, hallucination blocks
//   - Audit metrics: sink throughput, failures, backlog, chain verification
//   - Learning metrics: outcome classifications, threshold adjustments and
//     current thresholds
//   - Policy metrics: active mode, mode switches, pack reloads
//   - HTTP metrics: API requests, latency, rate limiting
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordEvaluation(mode, action, verdict, rule, failed, risk, false, elapsed)
//	mux.Handle("/metrics", collector.Handler())
//
// All metric names are prefixed with the configured namespace and subsystem
// (default "aegis_firewall_").
//
// # Cardinality Management
//
// Action labels originate in policy packs. The collector admits at most 64
// distinct actions and folds the rest into "other".
package metrics
