package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AEGIS_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration and applies defaults. Unknown fields are
// rejected. The result is not validated.
func Parse(data []byte) (*Config, error) {
	cfg := Config{
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention AEGIS_SECTION_FIELD (e.g., AEGIS_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path with environment overrides. A missing file is not
// an error: defaults plus environment overrides are used instead. An empty
// path always uses defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}

	cfg := NewDefaultConfig()
	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// envOverride binds one environment variable to a configuration field.
type envOverride struct {
	name  string
	apply func(cfg *Config, val string) error
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		*field(cfg) = val
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

func boolPtrVar(field func(*Config) **bool) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*field(cfg) = &b
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		i, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*field(cfg) = i
		return nil
	}
}

func int64Var(field func(*Config) *int64) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return err
		}
		*field(cfg) = i
		return nil
	}
}

func floatVar(field func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return err
		}
		*field(cfg) = f
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

var envOverrides = []envOverride{
	// Server
	{"SERVER_LISTEN_ADDRESS", stringVar(func(c *Config) *string { return &c.Server.ListenAddress })},
	{"SERVER_READ_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Server.ReadTimeout })},
	{"SERVER_WRITE_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Server.WriteTimeout })},
	{"SERVER_IDLE_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Server.IdleTimeout })},
	{"SERVER_SHUTDOWN_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout })},
	{"SERVER_MAX_BODY_BYTES", int64Var(func(c *Config) *int64 { return &c.Server.MaxBodyBytes })},
	{"SERVER_RATE_LIMIT_ENABLED", boolVar(func(c *Config) *bool { return &c.Server.RateLimit.Enabled })},
	{"SERVER_RATE_LIMIT_REQUESTS_PER_SECOND", floatVar(func(c *Config) *float64 { return &c.Server.RateLimit.RequestsPerSecond })},
	{"SERVER_RATE_LIMIT_BURST", intVar(func(c *Config) *int { return &c.Server.RateLimit.Burst })},

	// Policy
	{"POLICY_MODE", stringVar(func(c *Config) *string { return &c.Policy.Mode })},
	{"POLICY_PACK_PATH", stringVar(func(c *Config) *string { return &c.Policy.PackPath })},
	{"POLICY_WATCH", boolVar(func(c *Config) *bool { return &c.Policy.Watch })},
	{"POLICY_DEBOUNCE_INTERVAL", durationVar(func(c *Config) *time.Duration { return &c.Policy.DebounceInterval })},

	// Audit
	{"AUDIT_BACKEND", stringVar(func(c *Config) *string { return &c.Audit.Backend })},
	{"AUDIT_SQLITE_PATH", stringVar(func(c *Config) *string { return &c.Audit.SQLite.Path })},
	{"AUDIT_SINK_SPILL_PATH", stringVar(func(c *Config) *string { return &c.Audit.Sink.SpillPath })},
	{"AUDIT_INTEGRITY_VERIFY_SCHEDULE", stringVar(func(c *Config) *string { return &c.Audit.Integrity.VerifySchedule })},
	{"AUDIT_INTEGRITY_ARCHIVE_SCHEDULE", stringVar(func(c *Config) *string { return &c.Audit.Integrity.ArchiveSchedule })},
	{"AUDIT_INTEGRITY_ARCHIVE_DIR", stringVar(func(c *Config) *string { return &c.Audit.Integrity.ArchiveDir })},

	// Learning
	{"LEARNING_ENABLED", boolPtrVar(func(c *Config) **bool { return &c.Learning.Enabled })},
	{"LEARNING_BACKEND", stringVar(func(c *Config) *string { return &c.Learning.Backend })},
	{"LEARNING_STORE_PATH", stringVar(func(c *Config) *string { return &c.Learning.StorePath })},
	{"LEARNING_SENSITIVITY", floatVar(func(c *Config) *float64 { return &c.Learning.Sensitivity })},
	{"LEARNING_FALSE_NEGATIVE_SENSITIVITY", floatVar(func(c *Config) *float64 { return &c.Learning.FalseNegativeSensitivity })},
	{"LEARNING_STEP", floatVar(func(c *Config) *float64 { return &c.Learning.Step })},
	{"LEARNING_ADJUSTMENT_INTERVAL", durationVar(func(c *Config) *time.Duration { return &c.Learning.AdjustmentInterval })},

	// Telemetry
	{"TELEMETRY_LOGGING_LEVEL", stringVar(func(c *Config) *string { return &c.Telemetry.Logging.Level })},
	{"TELEMETRY_LOGGING_FORMAT", stringVar(func(c *Config) *string { return &c.Telemetry.Logging.Format })},
	{"TELEMETRY_LOGGING_REDACT_PII", boolPtrVar(func(c *Config) **bool { return &c.Telemetry.Logging.RedactPII })},
	{"TELEMETRY_METRICS_ENABLED", boolVar(func(c *Config) *bool { return &c.Telemetry.Metrics.Enabled })},
	{"TELEMETRY_METRICS_PATH", stringVar(func(c *Config) *string { return &c.Telemetry.Metrics.Path })},
	{"TELEMETRY_TRACING_ENABLED", boolVar(func(c *Config) *bool { return &c.Telemetry.Tracing.Enabled })},
	{"TELEMETRY_TRACING_ENDPOINT", stringVar(func(c *Config) *string { return &c.Telemetry.Tracing.Endpoint })},
	{"TELEMETRY_TRACING_SAMPLER", stringVar(func(c *Config) *string { return &c.Telemetry.Tracing.Sampler })},
	{"TELEMETRY_TRACING_SAMPLE_RATIO", floatVar(func(c *Config) *float64 { return &c.Telemetry.Tracing.SampleRatio })},
	{"TELEMETRY_TRACING_INSECURE", boolVar(func(c *Config) *bool { return &c.Telemetry.Tracing.OTLP.Insecure })},
}

// ApplyEnvOverrides applies AEGIS_SECTION_FIELD environment variables to the
// configuration. A value that does not parse for its field is an error.
func ApplyEnvOverrides(cfg *Config) error {
	var errs []FieldError
	for _, o := range envOverrides {
		name := EnvPrefix + o.name
		val, ok := os.LookupEnv(name)
		if !ok || val == "" {
			continue
		}
		if err := o.apply(cfg, val); err != nil {
			errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("invalid value %q: %v", val, err)})
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
