package firewall

import (
	"sort"
	"strings"
)

// Verdict is the outcome of a single evaluation.
type Verdict string

const (
	// VerdictAllow lets the output through unchanged.
	VerdictAllow Verdict = "ALLOW"

	// VerdictRequireEvidence asks the caller to attach supporting sources.
	VerdictRequireEvidence Verdict = "REQUIRE_EVIDENCE"

	// VerdictRequireHumanReview routes the output to a human reviewer.
	VerdictRequireHumanReview Verdict = "REQUIRE_HUMAN_REVIEW"

	// VerdictBlock stops the output.
	VerdictBlock Verdict = "BLOCK"
)

// Severity returns the comparison rank of a verdict. Higher is stricter.
// The rank only exists for comparisons in tests and statistics; resolution
// precedence is defined by the resolver, not by this ordering.
func (v Verdict) Severity() int {
	switch v {
	case VerdictAllow:
		return 0
	case VerdictRequireEvidence:
		return 1
	case VerdictRequireHumanReview:
		return 2
	case VerdictBlock:
		return 3
	default:
		return -1
	}
}

// ParseVerdict parses a verdict name (case-insensitive).
func ParseVerdict(s string) (Verdict, bool) {
	switch Verdict(strings.ToUpper(strings.TrimSpace(s))) {
	case VerdictAllow:
		return VerdictAllow, true
	case VerdictRequireEvidence:
		return VerdictRequireEvidence, true
	case VerdictRequireHumanReview:
		return VerdictRequireHumanReview, true
	case VerdictBlock:
		return VerdictBlock, true
	}
	return "", false
}

// Action is the real-world action the AI output is about to drive.
type Action string

const (
	ActionAnswer      Action = "answer"
	ActionEmail       Action = "email"
	ActionTrade       Action = "trade"
	ActionExecuteCode Action = "execute_code"
	ActionMedical     Action = "medical"
	ActionLegal       Action = "legal"
)

// BuiltinActions lists the actions known without a policy pack.
func BuiltinActions() []Action {
	return []Action{ActionAnswer, ActionEmail, ActionTrade, ActionExecuteCode, ActionMedical, ActionLegal}
}

// NormalizeAction lower-cases and trims an action name.
func NormalizeAction(s string) Action {
	return Action(strings.ToLower(strings.TrimSpace(s)))
}

// ClaimKind classifies a single claim.
type ClaimKind string

const (
	// ClaimFactual is an assertive statement about verifiable state.
	ClaimFactual ClaimKind = "factual"

	// ClaimSpeculative is hedged or probabilistic language.
	ClaimSpeculative ClaimKind = "speculative"

	// ClaimOpinion is evaluative or subjective language.
	ClaimOpinion ClaimKind = "opinion"
)

// Request is a single AI output submitted for evaluation.
type Request struct {
	// OutputText is the generated text.
	OutputText string `json:"output_text"`

	// Confidence is the model's stated confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Action is the intended real-world action.
	Action Action `json:"intended_action"`

	// Sources are references supporting the output. Order is irrelevant.
	Sources []string `json:"sources"`
}

// NormalizedSources returns the trimmed, de-duplicated and sorted non-blank
// sources of the request.
func (r *Request) NormalizedSources() []string {
	seen := make(map[string]struct{}, len(r.Sources))
	out := make([]string, 0, len(r.Sources))
	for _, s := range r.Sources {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Claim is one sentence-level statement extracted from an output.
type Claim struct {
	Text      string    `json:"text"`
	Kind      ClaimKind `json:"kind"`
	Certainty float64   `json:"certainty"`
}

// Coverage describes how well the sources cover the factual claims.
type Coverage string

const (
	// CoverageNone means there is nothing to evidence-check.
	CoverageNone Coverage = "none"
	// CoverageFull means the required number of sources is present.
	CoverageFull Coverage = "full"
	// CoveragePartial means some, but not enough, sources are present.
	CoveragePartial Coverage = "partial"
	// CoverageMissing means factual claims exist and no source is present.
	CoverageMissing Coverage = "missing"
)

// ClaimEvidence is the per-claim evidence verdict.
type ClaimEvidence struct {
	Claim      string `json:"claim"`
	Required   bool   `json:"required"`
	Sufficient bool   `json:"sufficient"`
}

// EvidenceAssessment is the aggregate evidence result.
type EvidenceAssessment struct {
	ClaimsRequiringEvidence int             `json:"claims_requiring_evidence"`
	RequiredSources         int             `json:"required_sources"`
	ValidSources            int             `json:"valid_sources"`
	Coverage                Coverage        `json:"coverage"`
	Sufficient              bool            `json:"sufficient"`
	Score                   float64         `json:"score"`
	PerClaim                []ClaimEvidence `json:"per_claim,omitempty"`
	QualityNotes            []string        `json:"quality_notes,omitempty"`
}

// AlignmentSeverity is the tier of a confidence misalignment.
type AlignmentSeverity string

const (
	SeverityNone     AlignmentSeverity = "none"
	SeverityModerate AlignmentSeverity = "moderate"
	SeveritySevere   AlignmentSeverity = "severe"
)

// Alignment is the confidence aligner output.
type Alignment struct {
	Aligned  bool              `json:"aligned"`
	Severity AlignmentSeverity `json:"severity"`
	Reason   string            `json:"reason,omitempty"`
}

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// LevelFor returns the risk level for a score.
func LevelFor(score float64) RiskLevel {
	switch {
	case score < 0.3:
		return RiskLow
	case score < 0.6:
		return RiskMedium
	case score < 0.8:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// RiskAssessment is the risk scorer output with its components.
type RiskAssessment struct {
	Score            float64   `json:"score"`
	Level            RiskLevel `json:"level"`
	ActionImpact     float64   `json:"action_impact"`
	EvidenceStrength float64   `json:"evidence_strength"`
	ImpactTerm       float64   `json:"impact_term"`
	ConfidenceTerm   float64   `json:"confidence_term"`
	EvidenceTerm     float64   `json:"evidence_term"`
}

// SafetyMatch is one triggered safety rule.
type SafetyMatch struct {
	Rule     string `json:"rule"`
	Category string `json:"category"`
	Excerpt  string `json:"excerpt,omitempty"`
}

// SafetyResult is the safety rule set output.
type SafetyResult struct {
	Triggered bool          `json:"triggered"`
	Matches   []SafetyMatch `json:"matches,omitempty"`
}

// GovernanceResult is the governance rule set output.
type GovernanceResult struct {
	Triggered bool   `json:"triggered"`
	Rule      string `json:"rule,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// CheckResult is one per-check line in the details report.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// Details is the structured report attached to every verdict.
type Details struct {
	Mode              string             `json:"mode"`
	PolicyVersion     string             `json:"policy_version"`
	DecisiveRule      string             `json:"decisive_rule"`
	Claims            []Claim            `json:"claims"`
	ClaimCount        int                `json:"claim_count"`
	FactualClaimCount int                `json:"factual_claim_count"`
	Risk              RiskAssessment     `json:"risk"`
	RiskLevel         RiskLevel          `json:"risk_level"`
	Evidence          EvidenceAssessment `json:"evidence"`
	Alignment         Alignment          `json:"alignment"`
	Safety            SafetyResult       `json:"safety"`
	Governance        GovernanceResult   `json:"governance"`
	Checks            []CheckResult      `json:"checks"`
}

// VerdictResult is the full, immutable result of one evaluation.
type VerdictResult struct {
	Verdict             Verdict  `json:"verdict"`
	Reason              string   `json:"reason"`
	RiskScore           float64  `json:"risk_score"`
	Explanation         string   `json:"explanation"`
	AppliedPolicies     []string `json:"applied_policies"`
	EscalationReason    string   `json:"escalation_reason,omitempty"`
	ConfidenceAlignment *bool    `json:"confidence_alignment,omitempty"`
	FailedChecks        []string `json:"failed_checks"`
	Details             Details  `json:"details"`
}

// HasFailedCheck reports whether the named check failed.
func (r *VerdictResult) HasFailedCheck(name string) bool {
	for _, c := range r.FailedChecks {
		if c == name {
			return true
		}
	}
	return false
}
