package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/gowebpki/jcs"

	"aegis-hq/firewall/pkg/firewall"
)

// Mode names a bundle of thresholds and mandatory-review actions.
type Mode string

const (
	ModeGeneralAI         Mode = "GENERAL_AI"
	ModeFinancialServices Mode = "FINANCIAL_SERVICES"
	ModeHealthcare        Mode = "HEALTHCARE"
	ModeLegal             Mode = "LEGAL"
)

// ParseMode normalizes a mode name: upper case, with dashes and spaces
// turned into underscores. It does not check that the mode exists.
func ParseMode(s string) Mode {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	return Mode(s)
}

// Thresholds are the numeric fields the threshold learner may adjust.
type Thresholds struct {
	// EvidenceConfidence is the confidence at or above which factual claims
	// must be backed by sources.
	EvidenceConfidence float64 `yaml:"evidence_confidence" json:"confidence_threshold_evidence_required"`

	// RiskMedium is the risk score at or above which evidence is required.
	RiskMedium float64 `yaml:"risk_medium" json:"risk_threshold_medium"`

	// RiskHigh is the risk score at or above which human review is required.
	RiskHigh float64 `yaml:"risk_high" json:"risk_threshold_high"`
}

// RiskWeights are the risk formula weights. They must sum to 1.
type RiskWeights struct {
	Impact     float64 `yaml:"impact" json:"impact"`
	Confidence float64 `yaml:"confidence" json:"confidence"`
	Evidence   float64 `yaml:"evidence" json:"evidence"`
}

// DefaultRiskWeights returns the default risk formula weights.
func DefaultRiskWeights() RiskWeights {
	return RiskWeights{Impact: 0.25, Confidence: 0.25, Evidence: 0.5}
}

// Sum returns the total of the three weights.
func (w RiskWeights) Sum() float64 {
	return w.Impact + w.Confidence + w.Evidence
}

// Bounds is an inclusive numeric range.
type Bounds struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether v lies within the bounds.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Clamp returns v limited to the bounds.
func (b Bounds) Clamp(v float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, v))
}

// ThresholdBounds are the allowed ranges for every adjustable threshold.
type ThresholdBounds struct {
	EvidenceConfidence Bounds `yaml:"evidence_confidence" json:"evidence_confidence"`
	RiskMedium         Bounds `yaml:"risk_medium" json:"risk_medium"`
	RiskHigh           Bounds `yaml:"risk_high" json:"risk_high"`
}

// DefaultThresholdBounds returns the default threshold ranges.
func DefaultThresholdBounds() ThresholdBounds {
	return ThresholdBounds{
		EvidenceConfidence: Bounds{Min: 0.4, Max: 0.9},
		RiskMedium:         Bounds{Min: 0.2, Max: 0.7},
		RiskHigh:           Bounds{Min: 0.4, Max: 0.95},
	}
}

// Config is one fully-formed policy configuration. A *Config obtained from a
// Store is shared and must be treated as read-only; use Clone to modify.
type Config struct {
	Mode                   Mode                        `json:"mode"`
	Description            string                      `json:"description"`
	MandatoryReviewActions []firewall.Action           `json:"mandatory_review_actions"`
	Thresholds             Thresholds                  `json:"thresholds"`
	Weights                RiskWeights                 `json:"risk_weights"`
	ActionImpact           map[firewall.Action]float64 `json:"action_impact"`
	DefaultImpact          float64                     `json:"default_impact"`
	NonFactualEvidenceGap  float64                     `json:"non_factual_evidence_gap"`
	Tuned                  bool                        `json:"tuned"`
	Version                string                      `json:"version"`
}

// RequiresReview reports whether the action is a mandatory-review action.
func (c *Config) RequiresReview(action firewall.Action) bool {
	for _, a := range c.MandatoryReviewActions {
		if a == action {
			return true
		}
	}
	return false
}

// Impact returns the impact weight for an action.
func (c *Config) Impact(action firewall.Action) float64 {
	if w, ok := c.ActionImpact[action]; ok {
		return w
	}
	return c.DefaultImpact
}

// KnowsAction reports whether the action is recognized by this configuration.
func (c *Config) KnowsAction(action firewall.Action) bool {
	if _, ok := c.ActionImpact[action]; ok {
		return true
	}
	for _, a := range firewall.BuiltinActions() {
		if a == action {
			return true
		}
	}
	return c.RequiresReview(action)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.MandatoryReviewActions = append([]firewall.Action(nil), c.MandatoryReviewActions...)
	out.ActionImpact = make(map[firewall.Action]float64, len(c.ActionImpact))
	for k, v := range c.ActionImpact {
		out.ActionImpact[k] = v
	}
	return &out
}

// seal sorts set-valued fields and stamps the content version.
func (c *Config) seal() {
	sort.Slice(c.MandatoryReviewActions, func(i, j int) bool {
		return c.MandatoryReviewActions[i] < c.MandatoryReviewActions[j]
	})
	c.Version = ""
	c.Version = ComputeVersion(c)
}

// ComputeVersion returns the sha256 of the canonical JSON form of the
// configuration with its Version field cleared.
func ComputeVersion(c *Config) string {
	tmp := *c
	tmp.Version = ""
	data, err := json.Marshal(&tmp)
	if err != nil {
		return ""
	}
	if canonical, err := jcs.Transform(data); err == nil {
		data = canonical
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// validate checks the configuration against the threshold bounds.
func (c *Config) validate(bounds ThresholdBounds) error {
	if c.Mode == "" {
		return NewConfigurationError("", "mode", "mode name is required")
	}
	t := c.Thresholds
	if !bounds.EvidenceConfidence.Contains(t.EvidenceConfidence) {
		return NewConfigurationErrorf(c.Mode, "thresholds.evidence_confidence",
			"%.3f outside bounds [%.2f, %.2f]", t.EvidenceConfidence, bounds.EvidenceConfidence.Min, bounds.EvidenceConfidence.Max)
	}
	if !bounds.RiskMedium.Contains(t.RiskMedium) {
		return NewConfigurationErrorf(c.Mode, "thresholds.risk_medium",
			"%.3f outside bounds [%.2f, %.2f]", t.RiskMedium, bounds.RiskMedium.Min, bounds.RiskMedium.Max)
	}
	if !bounds.RiskHigh.Contains(t.RiskHigh) {
		return NewConfigurationErrorf(c.Mode, "thresholds.risk_high",
			"%.3f outside bounds [%.2f, %.2f]", t.RiskHigh, bounds.RiskHigh.Min, bounds.RiskHigh.Max)
	}
	if t.RiskMedium >= t.RiskHigh {
		return NewConfigurationErrorf(c.Mode, "thresholds",
			"risk_medium (%.3f) must be below risk_high (%.3f)", t.RiskMedium, t.RiskHigh)
	}

	w := c.Weights
	if w.Impact < 0 || w.Confidence < 0 || w.Evidence < 0 {
		return NewConfigurationError(c.Mode, "risk_weights", "weights must be non-negative")
	}
	if math.Abs(w.Sum()-1) > 1e-6 {
		return NewConfigurationErrorf(c.Mode, "risk_weights", "weights must sum to 1, got %.4f", w.Sum())
	}

	for action, impact := range c.ActionImpact {
		if impact < 0 || impact > 1 {
			return NewConfigurationErrorf(c.Mode, "action_impact."+string(action), "%.3f outside [0,1]", impact)
		}
	}
	if c.DefaultImpact < 0 || c.DefaultImpact > 1 {
		return NewConfigurationErrorf(c.Mode, "default_impact", "%.3f outside [0,1]", c.DefaultImpact)
	}
	if c.NonFactualEvidenceGap < 0 || c.NonFactualEvidenceGap > 1 {
		return NewConfigurationErrorf(c.Mode, "non_factual_evidence_gap", "%.3f outside [0,1]", c.NonFactualEvidenceGap)
	}
	return nil
}
