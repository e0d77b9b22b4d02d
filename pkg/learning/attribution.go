package learning

import (
	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/policy"
)

// tracked is what the learner keeps about an observed evaluation.
type tracked struct {
	mode         policy.Mode
	verdict      firewall.Verdict
	rule         string
	factual      int
	validSources int
}

// Classify compares the original verdict with the human decision. A
// restrictive verdict overridden to allow is a false positive; ALLOW
// overridden to block is a false negative.
func Classify(original firewall.Verdict, human Decision) Classification {
	switch {
	case original != firewall.VerdictAllow && human == DecisionAllow:
		return FalsePositive
	case original == firewall.VerdictAllow && human == DecisionBlock:
		return FalseNegative
	}
	return Confirmed
}

// attribute names the check responsible for a decision.
//
// Restrictive verdicts map by decisive rule. An ALLOW that should have been
// blocked is charged to the evidence threshold when it let an unsourced
// factual claim through, and to the medium risk threshold otherwise.
func attribute(t tracked) Check {
	switch t.rule {
	case firewall.RuleSafetyBlock:
		return CheckSafety
	case firewall.RuleGovernance:
		return CheckGovernance
	case firewall.RuleUngroundedClaim, firewall.RuleEvidenceRequired:
		return CheckEvidenceConfidence
	case firewall.RuleRiskHigh:
		return CheckRiskHigh
	case firewall.RuleRiskMedium:
		return CheckRiskMedium
	case firewall.RuleDefaultAllow:
		if t.factual > 0 && t.validSources == 0 {
			return CheckEvidenceConfidence
		}
		return CheckRiskMedium
	}

	// No rule recorded: infer from the verdict.
	switch t.verdict {
	case firewall.VerdictBlock:
		return CheckEvidenceConfidence
	case firewall.VerdictRequireHumanReview:
		return CheckRiskHigh
	default:
		return CheckRiskMedium
	}
}

// step moves one threshold by delta, clamped to its bounds. It returns false
// when the move is a no-op or would break RiskMedium < RiskHigh.
func step(t policy.Thresholds, check Check, delta float64, bounds policy.ThresholdBounds) (policy.Thresholds, bool) {
	out := t
	switch check {
	case CheckEvidenceConfidence:
		out.EvidenceConfidence = round(bounds.EvidenceConfidence.Clamp(t.EvidenceConfidence + delta))
	case CheckRiskMedium:
		out.RiskMedium = round(bounds.RiskMedium.Clamp(t.RiskMedium + delta))
	case CheckRiskHigh:
		out.RiskHigh = round(bounds.RiskHigh.Clamp(t.RiskHigh + delta))
	default:
		return t, false
	}
	if out == t {
		return t, false
	}
	if out.RiskMedium >= out.RiskHigh {
		return t, false
	}
	return out, true
}

func round(f float64) float64 {
	const p = 1e6
	if f < 0 {
		return -float64(int64(-f*p+0.5)) / p
	}
	return float64(int64(f*p+0.5)) / p
}
