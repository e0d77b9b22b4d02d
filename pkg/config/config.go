package config

import "time"

// Config is the root configuration structure for the Aegis decision firewall.
// It contains the HTTP server, policy, claim extraction, safety rules, audit
// trail, learning and telemetry sections.
type Config struct {
	// Server contains HTTP API server configuration including listen address,
	// timeouts, body limits and per-client rate limiting.
	Server ServerConfig `yaml:"server"`

	// Policy contains the active mode, the optional policy pack location and
	// the bounds learned thresholds must stay within.
	Policy PolicyConfig `yaml:"policy"`

	// Claims contains claim extraction settings.
	Claims ClaimsConfig `yaml:"claims"`

	// Safety contains the safety rule set.
	Safety SafetyConfig `yaml:"safety"`

	// Audit contains the audit trail backend, sink and integrity settings.
	Audit AuditConfig `yaml:"audit"`

	// Learning contains the outcome learner settings.
	Learning LearningConfig `yaml:"learning"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8700", "0.0.0.0:8700").
	// Default: "127.0.0.1:8700"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for in-flight requests
	// during graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits request body size. Larger bodies get 413.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// RateLimit contains per-client request rate limiting.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains per-client token bucket settings.
type RateLimitConfig struct {
	// Enabled turns per-client rate limiting on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained rate allowed per client.
	// Default: 50
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the bucket size per client.
	// Default: 100
	Burst int `yaml:"burst"`
}

// PolicyConfig contains policy mode and policy pack configuration.
type PolicyConfig struct {
	// Mode is the policy mode active at startup.
	// Options: "GENERAL_AI", "FINANCIAL_SERVICES", "HEALTHCARE", "LEGAL", or
	// any mode defined by the policy pack.
	// Default: "GENERAL_AI"
	Mode string `yaml:"mode"`

	// PackPath is an optional YAML policy pack that overrides or adds modes.
	// Empty uses the built-in catalog only.
	PackPath string `yaml:"pack_path"`

	// Watch enables reloading the policy pack when the file changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period after a file change before the
	// pack is reloaded.
	// Default: 100ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// Bounds limit how far learned thresholds may move.
	Bounds ThresholdBoundsConfig `yaml:"bounds"`
}

// ThresholdBoundsConfig holds the allowed range for each adjustable threshold.
type ThresholdBoundsConfig struct {
	// EvidenceConfidence bounds the confidence above which factual claims
	// need evidence.
	// Default: [0.4, 0.9]
	EvidenceConfidence RangeConfig `yaml:"evidence_confidence"`

	// RiskMedium bounds the medium risk threshold.
	// Default: [0.2, 0.7]
	RiskMedium RangeConfig `yaml:"risk_medium"`

	// RiskHigh bounds the high risk threshold.
	// Default: [0.4, 0.95]
	RiskHigh RangeConfig `yaml:"risk_high"`
}

// RangeConfig is an inclusive [Min, Max] range.
type RangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// IsZero reports whether the range was left unset.
func (r RangeConfig) IsZero() bool {
	return r.Min == 0 && r.Max == 0
}

// ClaimsConfig contains claim extraction configuration.
type ClaimsConfig struct {
	// MinWords is the minimum number of words for a fragment to count as a
	// claim.
	// Default: 3
	MinWords int `yaml:"min_words"`

	// HedgeTerms are extra words or phrases that mark a claim as speculative.
	HedgeTerms []string `yaml:"hedge_terms"`

	// OpinionTerms are extra words or phrases that mark a claim as an opinion.
	OpinionTerms []string `yaml:"opinion_terms"`

	// FactualPatterns are extra regular expressions that mark a claim as
	// factual.
	FactualPatterns []string `yaml:"factual_patterns"`
}

// SafetyConfig contains safety rule configuration.
type SafetyConfig struct {
	// DisableBuiltin drops the built-in pattern rules, keeping only Patterns.
	// Default: false
	DisableBuiltin bool `yaml:"disable_builtin"`

	// DetectContradictions enables the negation contradiction check.
	// Default: true
	DetectContradictions *bool `yaml:"detect_contradictions"`

	// Patterns are additional pattern rules, matched case-insensitively.
	Patterns []SafetyPattern `yaml:"patterns"`
}

// SafetyPattern declares one additional safety rule.
type SafetyPattern struct {
	// Name identifies the rule in verdict details.
	Name string `yaml:"name"`

	// Category groups the rule.
	// Options: "unsafe_instruction", "disallowed_content", "action_scoped"
	Category string `yaml:"category"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Actions limits the rule to these intended actions. Empty means every
	// action.
	Actions []string `yaml:"actions"`
}

// AuditConfig contains audit trail configuration.
type AuditConfig struct {
	// Backend selects the audit storage.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite backend settings.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Sink contains asynchronous writer settings.
	Sink SinkConfig `yaml:"sink"`

	// Integrity contains scheduled chain verification and archive settings.
	Integrity IntegrityConfig `yaml:"integrity"`
}

// SQLiteConfig contains SQLite audit storage configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode *bool `yaml:"wal_mode"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// SinkConfig contains audit sink configuration.
type SinkConfig struct {
	// InitialInterval is the first retry delay after a failed write.
	// Default: 50ms
	InitialInterval time.Duration `yaml:"initial_interval"`

	// MaxInterval caps the retry delay.
	// Default: 5s
	MaxInterval time.Duration `yaml:"max_interval"`

	// MaxElapsedTime bounds one retry series before a failure is reported.
	// Default: 30s
	MaxElapsedTime time.Duration `yaml:"max_elapsed_time"`

	// WriteTimeout bounds a single storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// DrainTimeout bounds how long shutdown waits for queued records.
	// Default: 10s
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// SpillPath receives records still queued at shutdown as JSON lines.
	// Default: "data/audit-spill.jsonl"
	SpillPath string `yaml:"spill_path"`
}

// IntegrityConfig contains audit integrity scheduling configuration.
type IntegrityConfig struct {
	// VerifySchedule is a standard cron expression for full chain
	// verification. Empty disables scheduled verification.
	// Default: "*/15 * * * *"
	VerifySchedule string `yaml:"verify_schedule"`

	// ArchiveSchedule is a standard cron expression for JSONL archive
	// exports. Empty disables archiving.
	ArchiveSchedule string `yaml:"archive_schedule"`

	// ArchiveDir receives archive segments.
	// Default: "data/archives"
	ArchiveDir string `yaml:"archive_dir"`
}

// LearningConfig contains outcome learner configuration.
type LearningConfig struct {
	// Enabled turns threshold adjustment on. Outcomes are recorded either way.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Backend selects the learning store.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// StorePath is the learning database file path.
	// Default: "data/learning.db"
	StorePath string `yaml:"store_path"`

	// Sensitivity is the false positive rate above which a check relaxes.
	// Default: 0.2
	Sensitivity float64 `yaml:"sensitivity"`

	// FalseNegativeSensitivity is the false negative rate above which a check
	// tightens.
	// Default: 0.1
	FalseNegativeSensitivity float64 `yaml:"false_negative_sensitivity"`

	// MinFalsePositives is the sample floor before relaxing.
	// Default: 10
	MinFalsePositives int `yaml:"min_false_positives"`

	// MinFalseNegatives is the sample floor before tightening.
	// Default: 5
	MinFalseNegatives int `yaml:"min_false_negatives"`

	// Step is the size of one threshold move.
	// Default: 0.05
	Step float64 `yaml:"step"`

	// AdjustmentInterval is the minimum spacing between adjustments.
	// Default: 1m
	AdjustmentInterval time.Duration `yaml:"adjustment_interval"`

	// TrackedEvaluations bounds how many evaluations are remembered for
	// outcome matching.
	// Default: 10000
	TrackedEvaluations int `yaml:"tracked_evaluations"`

	// QueueSize is the outcome queue capacity.
	// Default: 1024
	QueueSize int `yaml:"queue_size"`
}

// IsEnabled reports whether threshold adjustment is on.
func (c LearningConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// TelemetryConfig contains configuration for observability features.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII enables automatic PII redaction in logs.
	// Redacts API keys, emails, SSN, IP addresses, etc.
	// Default: true
	RedactPII *bool `yaml:"redact_pii"`

	// RedactPatterns contains custom PII redaction patterns.
	// Each pattern has a name, regex, and replacement string.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactEnabled reports whether PII redaction is on.
func (c LoggingConfig) RedactEnabled() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// RedactPattern defines a custom PII redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled turns metrics collection and the metrics endpoint on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "aegis"
	Namespace string `yaml:"namespace"`

	// Subsystem follows the namespace in metric names.
	// Default: "firewall"
	Subsystem string `yaml:"subsystem"`

	// EvaluationDurationBuckets are histogram buckets in seconds.
	EvaluationDurationBuckets []float64 `yaml:"evaluation_duration_buckets"`

	// RiskScoreBuckets are histogram buckets for risk scores.
	RiskScoreBuckets []float64 `yaml:"risk_score_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled turns span export on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler selects the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces sampled by the ratio sampler.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Exporter selects the span exporter.
	// Options: "otlp", "none"
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "aegis-firewall"
	ServiceName string `yaml:"service_name"`

	// OTLP contains exporter connection settings.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter connection settings.
type OTLPConfig struct {
	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export call.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check configuration.
type HealthConfig struct {
	// CheckTimeout bounds each readiness check.
	// Default: 2s
	CheckTimeout time.Duration `yaml:"check_timeout"`

	// MaxAuditBacklog is the pending audit record count above which the
	// service reports not ready.
	// Default: 10000
	MaxAuditBacklog int `yaml:"max_audit_backlog"`
}
