package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(NewDefaultConfig()); err != nil {
		t.Fatalf("Validate(defaults) error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{
			name:      "listen address without port",
			modify:    func(c *Config) { c.Server.ListenAddress = "localhost" },
			wantField: "server.listen_address",
		},
		{
			name:      "negative read timeout",
			modify:    func(c *Config) { c.Server.ReadTimeout = -1 },
			wantField: "server.read_timeout",
		},
		{
			name: "rate limit with zero burst",
			modify: func(c *Config) {
				c.Server.RateLimit.Enabled = true
				c.Server.RateLimit.Burst = 0
			},
			wantField: "server.rate_limit.burst",
		},
		{
			name:      "blank mode",
			modify:    func(c *Config) { c.Policy.Mode = "  " },
			wantField: "policy.mode",
		},
		{
			name:      "watch without pack",
			modify:    func(c *Config) { c.Policy.Watch = true },
			wantField: "policy.pack_path",
		},
		{
			name:      "inverted bounds",
			modify:    func(c *Config) { c.Policy.Bounds.RiskHigh = RangeConfig{Min: 0.9, Max: 0.5} },
			wantField: "policy.bounds.risk_high",
		},
		{
			name:      "bounds above one",
			modify:    func(c *Config) { c.Policy.Bounds.EvidenceConfidence = RangeConfig{Min: 0.5, Max: 1.5} },
			wantField: "policy.bounds.evidence_confidence",
		},
		{
			name:      "invalid factual pattern",
			modify:    func(c *Config) { c.Claims.FactualPatterns = []string{"("} },
			wantField: "claims.factual_patterns[0]",
		},
		{
			name: "safety pattern with bad category",
			modify: func(c *Config) {
				c.Safety.Patterns = []SafetyPattern{{Name: "x", Category: "misc", Pattern: "x"}}
			},
			wantField: "safety.patterns[0].category",
		},
		{
			name: "action scoped pattern without actions",
			modify: func(c *Config) {
				c.Safety.Patterns = []SafetyPattern{{Name: "x", Category: "action_scoped", Pattern: "x"}}
			},
			wantField: "safety.patterns[0].actions",
		},
		{
			name: "duplicate safety pattern names",
			modify: func(c *Config) {
				c.Safety.Patterns = []SafetyPattern{
					{Name: "x", Category: "unsafe_instruction", Pattern: "a"},
					{Name: "x", Category: "unsafe_instruction", Pattern: "b"},
				}
			},
			wantField: "safety.patterns[1].name",
		},
		{
			name:      "builtin disabled without patterns",
			modify:    func(c *Config) { c.Safety.DisableBuiltin = true },
			wantField: "safety.disable_builtin",
		},
		{
			name:      "unknown audit backend",
			modify:    func(c *Config) { c.Audit.Backend = "postgres" },
			wantField: "audit.backend",
		},
		{
			name:      "archive schedule without dir",
			modify:    func(c *Config) { c.Audit.Integrity.ArchiveSchedule = "0 3 * * *"; c.Audit.Integrity.ArchiveDir = "" },
			wantField: "audit.integrity.archive_dir",
		},
		{
			name:      "sensitivity above one",
			modify:    func(c *Config) { c.Learning.Sensitivity = 1.2 },
			wantField: "learning.sensitivity",
		},
		{
			name:      "step too large",
			modify:    func(c *Config) { c.Learning.Step = 0.6 },
			wantField: "learning.step",
		},
		{
			name:      "unknown log level",
			modify:    func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			wantField: "telemetry.logging.level",
		},
		{
			name:      "invalid redact pattern",
			modify:    func(c *Config) { c.Telemetry.Logging.RedactPatterns = []RedactPattern{{Name: "bad", Pattern: "["}} },
			wantField: "telemetry.logging.redact_patterns[0].pattern",
		},
		{
			name:      "metrics path without slash",
			modify:    func(c *Config) { c.Telemetry.Metrics.Path = "metrics" },
			wantField: "telemetry.metrics.path",
		},
		{
			name:      "unknown sampler",
			modify:    func(c *Config) { c.Telemetry.Tracing.Sampler = "sometimes" },
			wantField: "telemetry.tracing.sampler",
		},
		{
			name: "tracing without endpoint",
			modify: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.Endpoint = ""
			},
			wantField: "telemetry.tracing.endpoint",
		},
		{
			name:      "unknown exporter",
			modify:    func(c *Config) { c.Telemetry.Tracing.Exporter = "zipkin" },
			wantField: "telemetry.tracing.exporter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.modify(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error type = %T, want ValidationError", err)
			}
			if !verr.HasField(tt.wantField) {
				t.Errorf("errors %v do not mention %q", verr.Errors, tt.wantField)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  ValidationError
		want string
	}{
		{
			name: "empty",
			err:  ValidationError{},
			want: "configuration validation failed",
		},
		{
			name: "single",
			err:  ValidationError{Errors: []FieldError{{Field: "a.b", Message: "bad"}}},
			want: "configuration validation failed: a.b: bad",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	multi := ValidationError{Errors: []FieldError{
		{Field: "a", Message: "one"},
		{Field: "b", Message: "two"},
	}}
	got := multi.Error()
	if !strings.Contains(got, "2 errors") || !strings.Contains(got, "  - b: two") {
		t.Errorf("Error() = %q", got)
	}
}
