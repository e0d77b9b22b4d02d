package main

import (
	"fmt"
	"os"
	"path/filepath"

	"aegis-hq/firewall/pkg/audit"
	"aegis-hq/firewall/pkg/audit/integrity"
	"aegis-hq/firewall/pkg/audit/sink"
	"aegis-hq/firewall/pkg/audit/storage"
	"aegis-hq/firewall/pkg/cli"
	"aegis-hq/firewall/pkg/config"
	"aegis-hq/firewall/pkg/firewall/claims"
	"aegis-hq/firewall/pkg/firewall/engine"
	"aegis-hq/firewall/pkg/firewall/rules"
	"aegis-hq/firewall/pkg/learning"
	"aegis-hq/firewall/pkg/policy"
)

// loadConfig loads the config file named by --config and installs it as the
// process configuration. A missing file falls back to defaults so the
// offline commands work without one.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError(cfgFile, err.Error())
	}
	return config.GetConfig(), nil
}

func engineConfig(cfg *config.Config) engine.Config {
	ec := engine.DefaultConfig()
	ec.Claims = &claims.Config{
		MinWords:        cfg.Claims.MinWords,
		HedgeTerms:      cfg.Claims.HedgeTerms,
		OpinionTerms:    cfg.Claims.OpinionTerms,
		FactualPatterns: cfg.Claims.FactualPatterns,
	}
	ec.Safety.DisableBuiltin = cfg.Safety.DisableBuiltin
	if cfg.Safety.DetectContradictions != nil {
		ec.Safety.DetectContradictions = *cfg.Safety.DetectContradictions
	}
	for _, p := range cfg.Safety.Patterns {
		ec.Safety.Custom = append(ec.Safety.Custom, rules.PatternConfig{
			Name:     p.Name,
			Category: p.Category,
			Pattern:  p.Pattern,
			Actions:  p.Actions,
		})
	}
	return ec
}

func buildEngine(cfg *config.Config) (*engine.Engine, error) {
	eng, err := engine.New(engineConfig(cfg))
	if err != nil {
		return nil, cli.NewConfigError("claims/safety", err.Error())
	}
	return eng, nil
}

func thresholdBounds(cfg *config.Config) policy.ThresholdBounds {
	b := policy.DefaultThresholdBounds()
	set := func(dst *policy.Bounds, src config.RangeConfig) {
		if !src.IsZero() {
			*dst = policy.Bounds{Min: src.Min, Max: src.Max}
		}
	}
	set(&b.EvidenceConfidence, cfg.Policy.Bounds.EvidenceConfidence)
	set(&b.RiskMedium, cfg.Policy.Bounds.RiskMedium)
	set(&b.RiskHigh, cfg.Policy.Bounds.RiskHigh)
	return b
}

// buildPolicyStore returns the policy store with the configured pack applied
// and the startup mode active.
func buildPolicyStore(cfg *config.Config) (*policy.Store, error) {
	bounds := thresholdBounds(cfg)
	catalog := policy.BuiltinCatalog()
	if cfg.Policy.PackPath != "" {
		var err error
		catalog, err = policy.LoadCatalog(cfg.Policy.PackPath, nil, bounds)
		if err != nil {
			return nil, cli.NewConfigError("policy.pack_path", err.Error())
		}
	}
	store, err := policy.NewStore(catalog, policy.ParseMode(cfg.Policy.Mode), bounds)
	if err != nil {
		return nil, cli.NewConfigError("policy.mode", err.Error())
	}
	return store, nil
}

// openAuditStorage opens the configured audit backend.
func openAuditStorage(cfg *config.Config) (audit.Storage, error) {
	switch cfg.Audit.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite", "":
		sc := &storage.SQLiteConfig{
			Path:         cfg.Audit.SQLite.Path,
			MaxOpenConns: cfg.Audit.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.Audit.SQLite.MaxIdleConns,
			WALMode:      cfg.Audit.SQLite.WALMode == nil || *cfg.Audit.SQLite.WALMode,
			BusyTimeout:  cfg.Audit.SQLite.BusyTimeout,
		}
		if err := ensureDir(sc.Path); err != nil {
			return nil, err
		}
		s, err := storage.NewSQLiteStorage(sc)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		return s, nil
	default:
		return nil, cli.NewConfigError("audit.backend", fmt.Sprintf("unsupported backend %q", cfg.Audit.Backend))
	}
}

func sinkConfig(cfg *config.Config) sink.Config {
	sc := sink.DefaultConfig()
	c := cfg.Audit.Sink
	if c.InitialInterval > 0 {
		sc.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		sc.MaxInterval = c.MaxInterval
	}
	if c.MaxElapsedTime > 0 {
		sc.MaxElapsedTime = c.MaxElapsedTime
	}
	if c.WriteTimeout > 0 {
		sc.WriteTimeout = c.WriteTimeout
	}
	if c.DrainTimeout > 0 {
		sc.DrainTimeout = c.DrainTimeout
	}
	sc.SpillPath = c.SpillPath
	return sc
}

func integrityConfig(cfg *config.Config) integrity.Config {
	return integrity.Config{
		VerifySchedule:  cfg.Audit.Integrity.VerifySchedule,
		ArchiveSchedule: cfg.Audit.Integrity.ArchiveSchedule,
		ArchiveDir:      cfg.Audit.Integrity.ArchiveDir,
	}
}

func learnerConfig(cfg *config.Config) learning.Config {
	lc := learning.DefaultConfig()
	c := cfg.Learning
	lc.Enabled = c.IsEnabled()
	if c.Sensitivity > 0 {
		lc.Sensitivity = c.Sensitivity
	}
	if c.FalseNegativeSensitivity > 0 {
		lc.FalseNegativeSensitivity = c.FalseNegativeSensitivity
	}
	if c.MinFalsePositives > 0 {
		lc.MinFalsePositives = c.MinFalsePositives
	}
	if c.MinFalseNegatives > 0 {
		lc.MinFalseNegatives = c.MinFalseNegatives
	}
	if c.Step > 0 {
		lc.Step = c.Step
	}
	if c.AdjustmentInterval > 0 {
		lc.AdjustmentInterval = c.AdjustmentInterval
	}
	if c.TrackedEvaluations > 0 {
		lc.TrackedEvaluations = c.TrackedEvaluations
	}
	if c.QueueSize > 0 {
		lc.QueueSize = c.QueueSize
	}
	return lc
}

// openLearningStore opens the configured learning persistence.
func openLearningStore(cfg *config.Config) (learning.Store, error) {
	switch cfg.Learning.Backend {
	case "memory":
		return learning.NewMemoryStore(), nil
	case "sqlite", "":
		if err := ensureDir(cfg.Learning.StorePath); err != nil {
			return nil, err
		}
		s, err := learning.NewSQLiteStore(cfg.Learning.StorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open learning database: %w", err)
		}
		return s, nil
	default:
		return nil, cli.NewConfigError("learning.backend", fmt.Sprintf("unsupported backend %q", cfg.Learning.Backend))
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
