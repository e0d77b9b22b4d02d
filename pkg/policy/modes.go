package policy

import "aegis-hq/firewall/pkg/firewall"

// DefaultNonFactualEvidenceGap is the evidence gap applied to outputs without
// factual claims that arrive with no sources.
const DefaultNonFactualEvidenceGap = 0.5

// DefaultImpact is the impact weight of actions missing from a mode's table.
const DefaultImpact = 0.5

// builtinModes returns the four standard modes.
func builtinModes() []*Config {
	return []*Config{
		{
			Mode:        ModeGeneralAI,
			Description: "General AI governance with conservative defaults",
			MandatoryReviewActions: []firewall.Action{
				firewall.ActionTrade, firewall.ActionExecuteCode,
			},
			Thresholds: Thresholds{EvidenceConfidence: 0.6, RiskMedium: 0.4, RiskHigh: 0.6},
			ActionImpact: map[firewall.Action]float64{
				firewall.ActionAnswer:      0.2,
				firewall.ActionEmail:       0.5,
				firewall.ActionTrade:       0.9,
				firewall.ActionExecuteCode: 0.95,
				firewall.ActionMedical:     0.8,
				firewall.ActionLegal:       0.8,
			},
		},
		{
			Mode:        ModeFinancialServices,
			Description: "Financial services compliance - all trades require human review",
			MandatoryReviewActions: []firewall.Action{
				firewall.ActionTrade, firewall.ActionExecuteCode,
			},
			Thresholds: Thresholds{EvidenceConfidence: 0.7, RiskMedium: 0.35, RiskHigh: 0.55},
			ActionImpact: map[firewall.Action]float64{
				firewall.ActionAnswer:      0.3,
				firewall.ActionEmail:       0.6,
				firewall.ActionTrade:       1.0,
				firewall.ActionExecuteCode: 1.0,
				firewall.ActionMedical:     0.8,
				firewall.ActionLegal:       0.8,
			},
		},
		{
			Mode:        ModeHealthcare,
			Description: "Healthcare compliance - medical actions require human review",
			MandatoryReviewActions: []firewall.Action{
				firewall.ActionMedical, firewall.ActionExecuteCode, firewall.ActionTrade,
			},
			Thresholds: Thresholds{EvidenceConfidence: 0.8, RiskMedium: 0.3, RiskHigh: 0.5},
			ActionImpact: map[firewall.Action]float64{
				firewall.ActionAnswer:      0.3,
				firewall.ActionEmail:       0.5,
				firewall.ActionTrade:       0.9,
				firewall.ActionExecuteCode: 0.95,
				firewall.ActionMedical:     1.0,
				firewall.ActionLegal:       0.8,
			},
		},
		{
			Mode:        ModeLegal,
			Description: "Legal compliance - legal actions require human review",
			MandatoryReviewActions: []firewall.Action{
				firewall.ActionLegal, firewall.ActionExecuteCode, firewall.ActionTrade,
			},
			Thresholds: Thresholds{EvidenceConfidence: 0.8, RiskMedium: 0.3, RiskHigh: 0.5},
			ActionImpact: map[firewall.Action]float64{
				firewall.ActionAnswer:      0.3,
				firewall.ActionEmail:       0.55,
				firewall.ActionTrade:       0.9,
				firewall.ActionExecuteCode: 0.95,
				firewall.ActionMedical:     0.8,
				firewall.ActionLegal:       1.0,
			},
		},
	}
}

// BuiltinCatalog returns a catalog with the four standard modes, using the
// default weights and evidence gap.
func BuiltinCatalog() *Catalog {
	c := &Catalog{modes: make(map[Mode]*Config)}
	for _, m := range builtinModes() {
		m.Weights = DefaultRiskWeights()
		m.DefaultImpact = DefaultImpact
		m.NonFactualEvidenceGap = DefaultNonFactualEvidenceGap
		m.seal()
		c.modes[m.Mode] = m
	}
	return c
}
