// Package telemetry groups the observability packages of the firewall.
//
// # Components
//
//   - logging: structured slog logging with PII redaction
//   - metrics: Prometheus collectors for verdicts, audit and learning
//   - tracing: OpenTelemetry spans around evaluations and HTTP requests
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	cfg := config.GetConfig()
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//		return err
//	}
//	logger.Install()
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordEvaluation("GENERAL_AI", "answer", "BLOCK", "evidence", nil, 0.82, true, time.Millisecond)
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(context.Background())
//
// # PII Protection
//
// Log attributes are redacted by default:
//
//   - API keys: sk-abc123 → sk-***
//   - Emails: user@example.com → u***@example.com
//   - SSN: 123-45-6789 → ***-**-****
//   - IP addresses: 192.168.1.1 → 192.*.*.*
//
// The output text under evaluation is never logged; audit records store its
// SHA-256 hash only.
package telemetry
