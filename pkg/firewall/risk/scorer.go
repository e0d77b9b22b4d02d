// Package risk computes the risk score of an AI output.
//
// The score is a weighted sum of three terms, clamped to [0,1]:
//
//	risk = impact(action)·w_impact + confidence·w_confidence + (1 − evidence)·w_evidence
//
// The weights and the per-action impact table come from the active policy
// configuration, so different modes score the same action differently.
package risk

import (
	"math"

	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/policy"
)

// Score computes the risk assessment for one evaluation. It is always
// computed, even when a safety or governance rule decides the verdict.
func Score(action firewall.Action, confidence float64, evidence firewall.EvidenceAssessment, cfg *policy.Config) firewall.RiskAssessment {
	impact := cfg.Impact(action)
	strength := clamp(evidence.Score)

	ra := firewall.RiskAssessment{
		ActionImpact:     impact,
		EvidenceStrength: strength,
		ImpactTerm:       round(impact * cfg.Weights.Impact),
		ConfidenceTerm:   round(confidence * cfg.Weights.Confidence),
		EvidenceTerm:     round((1 - strength) * cfg.Weights.Evidence),
	}
	ra.Score = round(clamp(ra.ImpactTerm + ra.ConfidenceTerm + ra.EvidenceTerm))
	ra.Level = firewall.LevelFor(ra.Score)
	return ra
}

func clamp(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

// round keeps scores at a fixed precision so that threshold comparisons are
// stable against floating point noise (0.05+0.1+0.5 must equal 0.65).
func round(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
