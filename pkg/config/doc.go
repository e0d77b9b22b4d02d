// Package config provides configuration management for the Aegis decision
// firewall.
//
// Configuration is loaded from YAML with environment variable overrides,
// filled with defaults and validated before use.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("aegis.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("aegis.yaml")
//
//  3. From a YAML file if present, otherwise defaults, plus overrides:
//     cfg, err := config.LoadOrDefault("aegis.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention AEGIS_SECTION_FIELD:
//
//   - AEGIS_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - AEGIS_POLICY_MODE overrides policy.mode
//   - AEGIS_AUDIT_SQLITE_PATH overrides audit.sqlite.path
//   - AEGIS_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// A value that does not parse for its field fails loading.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// Validation errors include field paths:
//
//	configuration validation failed with 2 errors:
//	  - audit.backend: invalid backend "postgres": must be 'sqlite' or 'memory'
//	  - learning.step: must be within (0, 0.5]
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8700"
//
//	policy:
//	  mode: "FINANCIAL_SERVICES"
//	  pack_path: "./policies/pack.yaml"
//	  watch: true
//
//	audit:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "/var/lib/aegis/audit.db"
//	  integrity:
//	    verify_schedule: "*/15 * * * *"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
package config
