package firewall

// Check names reported in FailedChecks and Details.Checks, in pipeline order.
const (
	CheckSafety     = "safety_rules"
	CheckGovernance = "governance_mandatory_review"
	CheckEvidence   = "evidence_sufficiency"
	CheckAlignment  = "confidence_alignment"
	CheckRisk       = "risk_threshold"
)

// Decisive rule names. Exactly one is recorded per verdict.
const (
	RuleSafetyBlock      = "safety_block"
	RuleGovernance       = "mandatory_governance_review"
	RuleUngroundedClaim  = "ungrounded_factual_claim"
	RuleEvidenceRequired = "evidence_required"
	RuleRiskHigh         = "risk_threshold_high"
	RuleRiskMedium       = "risk_threshold_medium"
	RuleDefaultAllow     = "default_allow"
)

// HallucinationConfidence is the stated confidence above which a blocked,
// under-evidenced output counts as a caught hallucination.
const HallucinationConfidence = 0.7

// IsHallucinationBlock reports whether a result is a blocked output whose
// evidence check failed while the model claimed high confidence.
func IsHallucinationBlock(r *VerdictResult, confidence float64) bool {
	return r.Verdict == VerdictBlock &&
		r.HasFailedCheck(CheckEvidence) &&
		confidence > HallucinationConfidence
}
