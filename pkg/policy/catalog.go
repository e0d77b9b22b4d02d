package policy

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"aegis-hq/firewall/pkg/firewall"
)

// Catalog is an immutable set of mode definitions.
type Catalog struct {
	modes map[Mode]*Config
}

// Get returns the definition for a mode.
func (c *Catalog) Get(mode Mode) (*Config, bool) {
	cfg, ok := c.modes[mode]
	return cfg, ok
}

// Modes returns the mode names in sorted order.
func (c *Catalog) Modes() []Mode {
	out := make([]Mode, 0, len(c.modes))
	for m := range c.modes {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks every mode against the bounds.
func (c *Catalog) Validate(bounds ThresholdBounds) error {
	var errs []error
	for _, m := range c.Modes() {
		if err := c.modes[m].validate(bounds); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pack is a YAML policy pack that overrides or extends the built-in modes.
//
// Example:
//
//	defaults:
//	  risk_weights: {impact: 0.3, confidence: 0.2, evidence: 0.5}
//	modes:
//	  FINANCIAL_SERVICES:
//	    thresholds: {risk_high: 0.5}
//	    impact_multipliers: {trade: 1.2}
//	  INSURANCE:
//	    description: Insurance claims handling
//	    mandatory_review_actions: [claim_payout]
//	    action_impact: {claim_payout: 0.9}
type Pack struct {
	Defaults PackDefaults        `yaml:"defaults"`
	Modes    map[string]ModeSpec `yaml:"modes"`
}

// PackDefaults apply to every mode that does not override them.
type PackDefaults struct {
	Weights               *RiskWeights `yaml:"risk_weights"`
	DefaultImpact         *float64     `yaml:"default_impact"`
	NonFactualEvidenceGap *float64     `yaml:"non_factual_evidence_gap"`
}

// ThresholdSpec is a partial threshold override.
type ThresholdSpec struct {
	EvidenceConfidence *float64 `yaml:"evidence_confidence"`
	RiskMedium         *float64 `yaml:"risk_medium"`
	RiskHigh           *float64 `yaml:"risk_high"`
}

// ModeSpec is a partial mode definition. For built-in modes only the fields
// present are overridden; new modes start from GENERAL_AI.
type ModeSpec struct {
	Description            *string            `yaml:"description"`
	MandatoryReviewActions []string           `yaml:"mandatory_review_actions"`
	Thresholds             *ThresholdSpec     `yaml:"thresholds"`
	Weights                *RiskWeights       `yaml:"risk_weights"`
	ActionImpact           map[string]float64 `yaml:"action_impact"`
	ImpactMultipliers      map[string]float64 `yaml:"impact_multipliers"`
	DefaultImpact          *float64           `yaml:"default_impact"`
	NonFactualEvidenceGap  *float64           `yaml:"non_factual_evidence_gap"`
}

// LoadPack reads and parses a policy pack file.
func LoadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &PackError{FilePath: path, Message: "read failed", Cause: err}
	}
	return ParsePack(data, path)
}

// ParsePack parses policy pack YAML. path is used for error messages only.
func ParsePack(data []byte, path string) (*Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, &PackError{FilePath: path, Message: "invalid YAML", Cause: err}
	}
	return &p, nil
}

// Apply merges the pack over base and returns a new validated catalog. base
// is not modified.
func (p *Pack) Apply(base *Catalog, bounds ThresholdBounds) (*Catalog, error) {
	out := &Catalog{modes: make(map[Mode]*Config, len(base.modes)+len(p.Modes))}
	for m, cfg := range base.modes {
		clone := cfg.Clone()
		p.applyDefaults(clone)
		out.modes[m] = clone
	}

	names := make([]string, 0, len(p.Modes))
	for name := range p.Modes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mode := ParseMode(name)
		if mode == "" {
			return nil, NewConfigurationError("", "modes", "empty mode name")
		}
		cfg, ok := out.modes[mode]
		if !ok {
			general, found := base.modes[ModeGeneralAI]
			if !found {
				general = BuiltinCatalog().modes[ModeGeneralAI]
			}
			cfg = general.Clone()
			p.applyDefaults(cfg)
			cfg.Mode = mode
			cfg.Description = fmt.Sprintf("Custom policy mode %s", mode)
			cfg.MandatoryReviewActions = nil
			out.modes[mode] = cfg
		}
		if err := p.Modes[name].applyTo(cfg); err != nil {
			return nil, err
		}
	}

	for _, cfg := range out.modes {
		cfg.seal()
	}
	if err := out.Validate(bounds); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pack) applyDefaults(cfg *Config) {
	if p.Defaults.Weights != nil {
		cfg.Weights = *p.Defaults.Weights
	}
	if p.Defaults.DefaultImpact != nil {
		cfg.DefaultImpact = *p.Defaults.DefaultImpact
	}
	if p.Defaults.NonFactualEvidenceGap != nil {
		cfg.NonFactualEvidenceGap = *p.Defaults.NonFactualEvidenceGap
	}
}

func (s ModeSpec) applyTo(cfg *Config) error {
	if s.Description != nil {
		cfg.Description = *s.Description
	}
	if s.MandatoryReviewActions != nil {
		seen := make(map[firewall.Action]struct{})
		cfg.MandatoryReviewActions = cfg.MandatoryReviewActions[:0]
		for _, a := range s.MandatoryReviewActions {
			action := firewall.NormalizeAction(a)
			if action == "" {
				return NewConfigurationError(cfg.Mode, "mandatory_review_actions", "empty action name")
			}
			if _, dup := seen[action]; dup {
				continue
			}
			seen[action] = struct{}{}
			cfg.MandatoryReviewActions = append(cfg.MandatoryReviewActions, action)
		}
	}
	if t := s.Thresholds; t != nil {
		if t.EvidenceConfidence != nil {
			cfg.Thresholds.EvidenceConfidence = *t.EvidenceConfidence
		}
		if t.RiskMedium != nil {
			cfg.Thresholds.RiskMedium = *t.RiskMedium
		}
		if t.RiskHigh != nil {
			cfg.Thresholds.RiskHigh = *t.RiskHigh
		}
	}
	if s.Weights != nil {
		cfg.Weights = *s.Weights
	}
	for a, w := range s.ActionImpact {
		cfg.ActionImpact[firewall.NormalizeAction(a)] = w
	}
	for a, m := range s.ImpactMultipliers {
		if m < 0 {
			return NewConfigurationErrorf(cfg.Mode, "impact_multipliers."+a, "multiplier %.3f must be non-negative", m)
		}
		action := firewall.NormalizeAction(a)
		base := cfg.Impact(action)
		impact := base * m
		if impact > 1 {
			impact = 1
		}
		cfg.ActionImpact[action] = impact
	}
	if s.DefaultImpact != nil {
		cfg.DefaultImpact = *s.DefaultImpact
	}
	if s.NonFactualEvidenceGap != nil {
		cfg.NonFactualEvidenceGap = *s.NonFactualEvidenceGap
	}
	// Mandatory-review actions must be known actions.
	for _, a := range cfg.MandatoryReviewActions {
		if _, ok := cfg.ActionImpact[a]; !ok {
			cfg.ActionImpact[a] = cfg.DefaultImpact
		}
	}
	return nil
}
