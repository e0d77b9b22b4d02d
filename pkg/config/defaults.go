package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress      = "127.0.0.1:8700"
	DefaultReadTimeout        = 10 * time.Second
	DefaultWriteTimeout       = 30 * time.Second
	DefaultIdleTimeout        = 120 * time.Second
	DefaultShutdownTimeout    = 15 * time.Second
	DefaultMaxHeaderBytes     = 1048576 // 1MB
	DefaultMaxBodyBytes       = int64(1048576)
	DefaultRateLimitPerSecond = 50.0
	DefaultRateLimitBurst     = 100

	// Policy defaults
	DefaultPolicyMode             = "GENERAL_AI"
	DefaultPolicyDebounceInterval = 100 * time.Millisecond

	// Claims defaults
	DefaultClaimsMinWords = 3

	// Audit defaults
	DefaultAuditBackend            = "sqlite"
	DefaultAuditSQLitePath         = "data/audit.db"
	DefaultAuditSQLiteMaxOpenConns = 10
	DefaultAuditSQLiteMaxIdleConns = 5
	DefaultAuditSQLiteBusyTimeout  = 5 * time.Second
	DefaultSinkInitialInterval     = 50 * time.Millisecond
	DefaultSinkMaxInterval         = 5 * time.Second
	DefaultSinkMaxElapsedTime      = 30 * time.Second
	DefaultSinkWriteTimeout        = 5 * time.Second
	DefaultSinkDrainTimeout        = 10 * time.Second
	DefaultSinkSpillPath           = "data/audit-spill.jsonl"
	DefaultVerifySchedule          = "*/15 * * * *"
	DefaultArchiveDir              = "data/archives"

	// Learning defaults
	DefaultLearningBackend            = "sqlite"
	DefaultLearningStorePath          = "data/learning.db"
	DefaultLearningSensitivity        = 0.2
	DefaultLearningFNSensitivity      = 0.1
	DefaultLearningMinFalsePositives  = 10
	DefaultLearningMinFalseNegatives  = 5
	DefaultLearningStep               = 0.05
	DefaultLearningAdjustmentInterval = time.Minute
	DefaultLearningTrackedEvaluations = 10000
	DefaultLearningQueueSize          = 1024

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "aegis"
	DefaultMetricsSubsystem   = "firewall"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingExporter    = "otlp"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "aegis-firewall"
	DefaultOTLPTimeout        = 10 * time.Second
	DefaultHealthCheckTimeout = 2 * time.Second
	DefaultMaxAuditBacklog    = 10000
)

// Default threshold bounds.
var (
	DefaultEvidenceConfidenceBounds = RangeConfig{Min: 0.4, Max: 0.9}
	DefaultRiskMediumBounds         = RangeConfig{Min: 0.2, Max: 0.7}
	DefaultRiskHighBounds           = RangeConfig{Min: 0.4, Max: 0.95}
)

// NewDefaultConfig returns a configuration with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyPolicyDefaults(&cfg.Policy)

	if cfg.Claims.MinWords == 0 {
		cfg.Claims.MinWords = DefaultClaimsMinWords
	}
	if cfg.Safety.DetectContradictions == nil {
		cfg.Safety.DetectContradictions = boolPtr(true)
	}

	applyAuditDefaults(&cfg.Audit)
	applyLearningDefaults(&cfg.Learning)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.MaxHeaderBytes == 0 {
		s.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.RateLimit.RequestsPerSecond == 0 {
		s.RateLimit.RequestsPerSecond = DefaultRateLimitPerSecond
	}
	if s.RateLimit.Burst == 0 {
		s.RateLimit.Burst = DefaultRateLimitBurst
	}
}

func applyPolicyDefaults(p *PolicyConfig) {
	if p.Mode == "" {
		p.Mode = DefaultPolicyMode
	}
	if p.DebounceInterval == 0 {
		p.DebounceInterval = DefaultPolicyDebounceInterval
	}
	if p.Bounds.EvidenceConfidence.IsZero() {
		p.Bounds.EvidenceConfidence = DefaultEvidenceConfidenceBounds
	}
	if p.Bounds.RiskMedium.IsZero() {
		p.Bounds.RiskMedium = DefaultRiskMediumBounds
	}
	if p.Bounds.RiskHigh.IsZero() {
		p.Bounds.RiskHigh = DefaultRiskHighBounds
	}
}

func applyAuditDefaults(a *AuditConfig) {
	if a.Backend == "" {
		a.Backend = DefaultAuditBackend
	}
	if a.SQLite.Path == "" {
		a.SQLite.Path = DefaultAuditSQLitePath
	}
	if a.SQLite.MaxOpenConns == 0 {
		a.SQLite.MaxOpenConns = DefaultAuditSQLiteMaxOpenConns
	}
	if a.SQLite.MaxIdleConns == 0 {
		a.SQLite.MaxIdleConns = DefaultAuditSQLiteMaxIdleConns
	}
	if a.SQLite.WALMode == nil {
		a.SQLite.WALMode = boolPtr(true)
	}
	if a.SQLite.BusyTimeout == 0 {
		a.SQLite.BusyTimeout = DefaultAuditSQLiteBusyTimeout
	}

	if a.Sink.InitialInterval == 0 {
		a.Sink.InitialInterval = DefaultSinkInitialInterval
	}
	if a.Sink.MaxInterval == 0 {
		a.Sink.MaxInterval = DefaultSinkMaxInterval
	}
	if a.Sink.MaxElapsedTime == 0 {
		a.Sink.MaxElapsedTime = DefaultSinkMaxElapsedTime
	}
	if a.Sink.WriteTimeout == 0 {
		a.Sink.WriteTimeout = DefaultSinkWriteTimeout
	}
	if a.Sink.DrainTimeout == 0 {
		a.Sink.DrainTimeout = DefaultSinkDrainTimeout
	}
	if a.Sink.SpillPath == "" {
		a.Sink.SpillPath = DefaultSinkSpillPath
	}

	if a.Integrity.VerifySchedule == "" {
		a.Integrity.VerifySchedule = DefaultVerifySchedule
	}
	if a.Integrity.ArchiveDir == "" {
		a.Integrity.ArchiveDir = DefaultArchiveDir
	}
}

func applyLearningDefaults(l *LearningConfig) {
	if l.Enabled == nil {
		l.Enabled = boolPtr(true)
	}
	if l.Backend == "" {
		l.Backend = DefaultLearningBackend
	}
	if l.StorePath == "" {
		l.StorePath = DefaultLearningStorePath
	}
	if l.Sensitivity == 0 {
		l.Sensitivity = DefaultLearningSensitivity
	}
	if l.FalseNegativeSensitivity == 0 {
		l.FalseNegativeSensitivity = DefaultLearningFNSensitivity
	}
	if l.MinFalsePositives == 0 {
		l.MinFalsePositives = DefaultLearningMinFalsePositives
	}
	if l.MinFalseNegatives == 0 {
		l.MinFalseNegatives = DefaultLearningMinFalseNegatives
	}
	if l.Step == 0 {
		l.Step = DefaultLearningStep
	}
	if l.AdjustmentInterval == 0 {
		l.AdjustmentInterval = DefaultLearningAdjustmentInterval
	}
	if l.TrackedEvaluations == 0 {
		l.TrackedEvaluations = DefaultLearningTrackedEvaluations
	}
	if l.QueueSize == 0 {
		l.QueueSize = DefaultLearningQueueSize
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	if t.Logging.RedactPII == nil {
		t.Logging.RedactPII = boolPtr(true)
	}

	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Metrics.Subsystem == "" {
		t.Metrics.Subsystem = DefaultMetricsSubsystem
	}

	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.Exporter == "" {
		t.Tracing.Exporter = DefaultTracingExporter
	}
	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.OTLP.Timeout == 0 {
		t.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}

	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
	if t.Health.MaxAuditBacklog == 0 {
		t.Health.MaxAuditBacklog = DefaultMaxAuditBacklog
	}
}

func boolPtr(b bool) *bool {
	return &b
}
