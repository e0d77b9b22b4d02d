package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// HasField reports whether any error refers to the given field path.
func (e ValidationError) HasField(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateClaims(&cfg.Claims)...)
	errs = append(errs, validateSafety(&cfg.Safety)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateLearning(&cfg.Learning)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: must be host:port", cfg.ListenAddress),
		})
	}

	timeouts := []struct {
		field string
		value time.Duration
	}{
		{"server.read_timeout", cfg.ReadTimeout},
		{"server.write_timeout", cfg.WriteTimeout},
		{"server.idle_timeout", cfg.IdleTimeout},
		{"server.shutdown_timeout", cfg.ShutdownTimeout},
	}
	for _, t := range timeouts {
		if t.value < 0 {
			errs = append(errs, FieldError{Field: t.field, Message: "timeout must not be negative"})
		}
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "must not be negative"})
	}
	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "must be positive"})
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, FieldError{
				Field:   "server.rate_limit.requests_per_second",
				Message: "must be positive when rate limiting is enabled",
			})
		}
		if cfg.RateLimit.Burst < 1 {
			errs = append(errs, FieldError{
				Field:   "server.rate_limit.burst",
				Message: "must be at least 1 when rate limiting is enabled",
			})
		}
	}

	return errs
}

func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	if strings.TrimSpace(cfg.Mode) == "" {
		errs = append(errs, FieldError{Field: "policy.mode", Message: "policy mode is required"})
	}
	if cfg.Watch && cfg.PackPath == "" {
		errs = append(errs, FieldError{Field: "policy.pack_path", Message: "pack path is required when watch is enabled"})
	}
	if cfg.DebounceInterval < 0 {
		errs = append(errs, FieldError{Field: "policy.debounce_interval", Message: "must not be negative"})
	}

	errs = append(errs, validateRange("policy.bounds.evidence_confidence", cfg.Bounds.EvidenceConfidence)...)
	errs = append(errs, validateRange("policy.bounds.risk_medium", cfg.Bounds.RiskMedium)...)
	errs = append(errs, validateRange("policy.bounds.risk_high", cfg.Bounds.RiskHigh)...)

	return errs
}

func validateRange(field string, r RangeConfig) []FieldError {
	if r.Min < 0 || r.Max > 1 {
		return []FieldError{{Field: field, Message: fmt.Sprintf("range [%v, %v] must lie within [0, 1]", r.Min, r.Max)}}
	}
	if r.Min > r.Max {
		return []FieldError{{Field: field, Message: fmt.Sprintf("min %v exceeds max %v", r.Min, r.Max)}}
	}
	return nil
}

func validateClaims(cfg *ClaimsConfig) []FieldError {
	var errs []FieldError

	if cfg.MinWords < 1 {
		errs = append(errs, FieldError{Field: "claims.min_words", Message: "must be at least 1"})
	}
	for i, p := range cfg.FactualPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("claims.factual_patterns[%d]", i),
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}

	return errs
}

var validSafetyCategories = map[string]bool{
	"unsafe_instruction": true,
	"disallowed_content": true,
	"action_scoped":      true,
}

func validateSafety(cfg *SafetyConfig) []FieldError {
	var errs []FieldError

	seen := make(map[string]bool, len(cfg.Patterns))
	for i, p := range cfg.Patterns {
		prefix := fmt.Sprintf("safety.patterns[%d]", i)
		if p.Name == "" {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: "pattern name is required"})
		} else if seen[p.Name] {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: fmt.Sprintf("duplicate pattern name %q", p.Name)})
		}
		seen[p.Name] = true

		if !validSafetyCategories[p.Category] {
			errs = append(errs, FieldError{
				Field:   prefix + ".category",
				Message: fmt.Sprintf("invalid category %q: must be 'unsafe_instruction', 'disallowed_content', or 'action_scoped'", p.Category),
			})
		}
		if p.Category == "action_scoped" && len(p.Actions) == 0 {
			errs = append(errs, FieldError{Field: prefix + ".actions", Message: "action_scoped patterns need at least one action"})
		}
		if p.Pattern == "" {
			errs = append(errs, FieldError{Field: prefix + ".pattern", Message: "pattern is required"})
		} else if _, err := regexp.Compile("(?i)" + p.Pattern); err != nil {
			errs = append(errs, FieldError{Field: prefix + ".pattern", Message: fmt.Sprintf("invalid regular expression: %v", err)})
		}
	}
	if cfg.DisableBuiltin && len(cfg.Patterns) == 0 {
		errs = append(errs, FieldError{Field: "safety.disable_builtin", Message: "disabling built-in rules requires at least one pattern"})
	}

	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "audit.sqlite.path", Message: "path is required for the sqlite backend"})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{Field: "audit.sqlite.max_open_conns", Message: "must be at least 1"})
		}
		if cfg.SQLite.MaxIdleConns < 0 || cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{Field: "audit.sqlite.max_idle_conns", Message: "must be between 0 and max_open_conns"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "audit.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'sqlite' or 'memory'", cfg.Backend),
		})
	}

	if cfg.Sink.MaxInterval < cfg.Sink.InitialInterval {
		errs = append(errs, FieldError{Field: "audit.sink.max_interval", Message: "must not be below initial_interval"})
	}
	if cfg.Sink.WriteTimeout <= 0 {
		errs = append(errs, FieldError{Field: "audit.sink.write_timeout", Message: "must be positive"})
	}

	schedules := []struct {
		field string
		expr  string
	}{
		{"audit.integrity.verify_schedule", cfg.Integrity.VerifySchedule},
		{"audit.integrity.archive_schedule", cfg.Integrity.ArchiveSchedule},
	}
	for _, sc := range schedules {
		if sc.expr == "" {
			continue
		}
		if _, err := cron.ParseStandard(sc.expr); err != nil {
			errs = append(errs, FieldError{Field: sc.field, Message: fmt.Sprintf("invalid cron expression %q: %v", sc.expr, err)})
		}
	}
	if cfg.Integrity.ArchiveSchedule != "" && cfg.Integrity.ArchiveDir == "" {
		errs = append(errs, FieldError{Field: "audit.integrity.archive_dir", Message: "archive dir is required when archive_schedule is set"})
	}

	return errs
}

func validateLearning(cfg *LearningConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.StorePath == "" {
			errs = append(errs, FieldError{Field: "learning.store_path", Message: "store path is required for the sqlite backend"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "learning.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'sqlite' or 'memory'", cfg.Backend),
		})
	}

	if cfg.Sensitivity < 0 || cfg.Sensitivity > 1 {
		errs = append(errs, FieldError{Field: "learning.sensitivity", Message: "must be between 0.0 and 1.0"})
	}
	if cfg.FalseNegativeSensitivity < 0 || cfg.FalseNegativeSensitivity > 1 {
		errs = append(errs, FieldError{Field: "learning.false_negative_sensitivity", Message: "must be between 0.0 and 1.0"})
	}
	if cfg.Step <= 0 || cfg.Step > 0.5 {
		errs = append(errs, FieldError{Field: "learning.step", Message: "must be within (0, 0.5]"})
	}
	if cfg.MinFalsePositives < 1 {
		errs = append(errs, FieldError{Field: "learning.min_false_positives", Message: "must be at least 1"})
	}
	if cfg.MinFalseNegatives < 1 {
		errs = append(errs, FieldError{Field: "learning.min_false_negatives", Message: "must be at least 1"})
	}
	if cfg.AdjustmentInterval < 0 {
		errs = append(errs, FieldError{Field: "learning.adjustment_interval", Message: "must not be negative"})
	}
	if cfg.TrackedEvaluations < 1 {
		errs = append(errs, FieldError{Field: "learning.tracked_evaluations", Message: "must be at least 1"})
	}
	if cfg.QueueSize < 1 {
		errs = append(errs, FieldError{Field: "learning.queue_size", Message: "must be at least 1"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text', or 'console'", cfg.Logging.Format),
		})
	}

	for i, p := range cfg.Logging.RedactPatterns {
		if p.Name == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("telemetry.logging.redact_patterns[%d].name", i), Message: "pattern name is required"})
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/' when metrics are enabled",
		})
	}

	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}
	switch cfg.Tracing.Exporter {
	case "otlp":
		if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "tracing endpoint is required when tracing is enabled",
			})
		}
	case "none":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.exporter",
			Message: fmt.Sprintf("invalid exporter %q: must be 'otlp' or 'none'", cfg.Tracing.Exporter),
		})
	}

	if cfg.Health.CheckTimeout <= 0 {
		errs = append(errs, FieldError{Field: "telemetry.health.check_timeout", Message: "must be positive"})
	}
	if cfg.Health.MaxAuditBacklog < 1 {
		errs = append(errs, FieldError{Field: "telemetry.health.max_audit_backlog", Message: "must be at least 1"})
	}

	return errs
}
