package config

import (
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("Server.ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Errorf("Server.MaxBodyBytes = %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Policy.Mode != "GENERAL_AI" {
		t.Errorf("Policy.Mode = %q", cfg.Policy.Mode)
	}
	if cfg.Policy.DebounceInterval != 100*time.Millisecond {
		t.Errorf("Policy.DebounceInterval = %v", cfg.Policy.DebounceInterval)
	}
	if cfg.Policy.Bounds.EvidenceConfidence != DefaultEvidenceConfidenceBounds {
		t.Errorf("EvidenceConfidence bounds = %+v", cfg.Policy.Bounds.EvidenceConfidence)
	}
	if cfg.Claims.MinWords != 3 {
		t.Errorf("Claims.MinWords = %d", cfg.Claims.MinWords)
	}
	if cfg.Safety.DetectContradictions == nil || !*cfg.Safety.DetectContradictions {
		t.Error("Safety.DetectContradictions should default to true")
	}
	if cfg.Audit.SQLite.WALMode == nil || !*cfg.Audit.SQLite.WALMode {
		t.Error("Audit.SQLite.WALMode should default to true")
	}
	if cfg.Audit.Integrity.VerifySchedule != DefaultVerifySchedule {
		t.Errorf("VerifySchedule = %q", cfg.Audit.Integrity.VerifySchedule)
	}
	if !cfg.Learning.IsEnabled() {
		t.Error("Learning should default to enabled")
	}
	if cfg.Learning.MinFalsePositives != 10 || cfg.Learning.MinFalseNegatives != 5 {
		t.Errorf("Learning floors = %d/%d", cfg.Learning.MinFalsePositives, cfg.Learning.MinFalseNegatives)
	}
	if !cfg.Telemetry.Logging.RedactEnabled() {
		t.Error("Logging redaction should default to on")
	}
	if cfg.Telemetry.Tracing.ServiceName != DefaultTracingServiceName {
		t.Errorf("Tracing.ServiceName = %q", cfg.Telemetry.Tracing.ServiceName)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	off := false
	cfg := &Config{
		Server:   ServerConfig{ListenAddress: ":9999"},
		Policy:   PolicyConfig{Mode: "LEGAL"},
		Safety:   SafetyConfig{DetectContradictions: &off},
		Learning: LearningConfig{Enabled: &off, Step: 0.2},
	}
	ApplyDefaults(cfg)
	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != ":9999" {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.Policy.Mode != "LEGAL" {
		t.Errorf("Policy.Mode = %q", cfg.Policy.Mode)
	}
	if *cfg.Safety.DetectContradictions {
		t.Error("explicit DetectContradictions=false was overwritten")
	}
	if cfg.Learning.IsEnabled() {
		t.Error("explicit Learning.Enabled=false was overwritten")
	}
	if cfg.Learning.Step != 0.2 {
		t.Errorf("Learning.Step = %v", cfg.Learning.Step)
	}
}

func TestNewDefaultConfig_MetricsEnabled(t *testing.T) {
	if !NewDefaultConfig().Telemetry.Metrics.Enabled {
		t.Error("metrics should be enabled by default")
	}
}
