package engine

import (
	"fmt"
	"sort"
	"strings"

	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/policy"
)

// Signals are the component outputs the resolver combines.
type Signals struct {
	Confidence        float64
	FactualClaimCount int
	Evidence          firewall.EvidenceAssessment
	Alignment         firewall.Alignment
	Risk              firewall.RiskAssessment
	Safety            firewall.SafetyResult
	Governance        firewall.GovernanceResult
}

// Resolution is the resolver's decision.
type Resolution struct {
	Verdict          firewall.Verdict
	Rule             string
	Reason           string
	EscalationReason string
}

// Resolve applies the verdict precedence. The first matching rule wins:
//
//  1. safety rule match: BLOCK
//  2. mandatory governance review: REQUIRE_HUMAN_REVIEW
//  3. factual claim at or above the evidence threshold with no sources: BLOCK
//  4. confidence misalignment or partial coverage: REQUIRE_EVIDENCE
//  5. risk at or above the high threshold: REQUIRE_HUMAN_REVIEW
//  6. risk at or above the medium threshold: REQUIRE_EVIDENCE
//  7. ALLOW
func Resolve(s Signals, t policy.Thresholds) Resolution {
	if s.Safety.Triggered {
		return Resolution{
			Verdict: firewall.VerdictBlock,
			Rule:    firewall.RuleSafetyBlock,
			Reason:  "Safety rule violated: " + strings.Join(safetyRuleNames(s.Safety), ", "),
		}
	}

	if s.Governance.Triggered {
		return Resolution{
			Verdict:          firewall.VerdictRequireHumanReview,
			Rule:             firewall.RuleGovernance,
			Reason:           s.Governance.Reason,
			EscalationReason: s.Governance.Reason,
		}
	}

	if s.FactualClaimCount > 0 && s.Confidence >= t.EvidenceConfidence && s.Evidence.ValidSources == 0 {
		return Resolution{
			Verdict: firewall.VerdictBlock,
			Rule:    firewall.RuleUngroundedClaim,
			Reason: fmt.Sprintf("Severe ungrounded factual claim: confidence %.2f is at or above %.2f and no sources were provided",
				s.Confidence, t.EvidenceConfidence),
		}
	}

	if !s.Alignment.Aligned || s.Evidence.Coverage == firewall.CoveragePartial {
		reason := "Confidence misalignment: " + s.Alignment.Reason
		if s.Alignment.Aligned {
			reason = fmt.Sprintf("Claims requiring evidence are only partially covered: %d of %d required sources",
				s.Evidence.ValidSources, s.Evidence.RequiredSources)
		}
		return Resolution{
			Verdict: firewall.VerdictRequireEvidence,
			Rule:    firewall.RuleEvidenceRequired,
			Reason:  reason,
		}
	}

	if s.Risk.Score >= t.RiskHigh {
		reason := fmt.Sprintf("Risk score %.2f is at or above the high-risk threshold %.2f", s.Risk.Score, t.RiskHigh)
		return Resolution{
			Verdict:          firewall.VerdictRequireHumanReview,
			Rule:             firewall.RuleRiskHigh,
			Reason:           reason,
			EscalationReason: reason,
		}
	}

	if s.Risk.Score >= t.RiskMedium {
		return Resolution{
			Verdict: firewall.VerdictRequireEvidence,
			Rule:    firewall.RuleRiskMedium,
			Reason:  fmt.Sprintf("Risk score %.2f is at or above the medium-risk threshold %.2f", s.Risk.Score, t.RiskMedium),
		}
	}

	return Resolution{
		Verdict: firewall.VerdictAllow,
		Rule:    firewall.RuleDefaultAllow,
		Reason:  "All checks passed",
	}
}

// checks reports every check in pipeline order.
func checks(s Signals, t policy.Thresholds) []firewall.CheckResult {
	out := []firewall.CheckResult{
		{Name: firewall.CheckSafety, Passed: !s.Safety.Triggered},
		{Name: firewall.CheckGovernance, Passed: !s.Governance.Triggered},
		{Name: firewall.CheckEvidence, Passed: s.Evidence.Sufficient},
		{Name: firewall.CheckAlignment, Passed: s.Alignment.Aligned},
		{Name: firewall.CheckRisk, Passed: s.Risk.Score < t.RiskMedium},
	}
	if !out[0].Passed {
		out[0].Reason = strings.Join(safetyRuleNames(s.Safety), ", ")
	}
	if !out[1].Passed {
		out[1].Reason = s.Governance.Reason
	}
	if !out[2].Passed {
		out[2].Reason = fmt.Sprintf("%s coverage: %d of %d required sources",
			s.Evidence.Coverage, s.Evidence.ValidSources, s.Evidence.RequiredSources)
	}
	if !out[3].Passed {
		out[3].Reason = s.Alignment.Reason
	}
	if !out[4].Passed {
		out[4].Reason = fmt.Sprintf("risk %.2f (%s)", s.Risk.Score, s.Risk.Level)
	}
	return out
}

func failedChecks(results []firewall.CheckResult) []string {
	out := make([]string, 0, len(results))
	for _, c := range results {
		if !c.Passed {
			out = append(out, c.Name)
		}
	}
	return out
}

// appliedPolicies returns the sorted set of policies that took part in the
// decision.
func appliedPolicies(cfg *policy.Config, s Signals, r Resolution) []string {
	set := map[string]struct{}{
		"policy_mode:" + string(cfg.Mode): {},
		"rule:" + r.Rule:                  {},
	}
	for _, m := range s.Safety.Matches {
		set["safety:"+m.Rule] = struct{}{}
	}
	if s.Governance.Triggered {
		set["governance:"+s.Governance.Rule] = struct{}{}
	}
	if cfg.Tuned {
		set["learned_thresholds"] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func safetyRuleNames(s firewall.SafetyResult) []string {
	names := make([]string, len(s.Matches))
	for i, m := range s.Matches {
		names[i] = m.Rule
	}
	return names
}
