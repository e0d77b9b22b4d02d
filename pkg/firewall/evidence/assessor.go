package evidence

import (
	"fmt"

	"aegis-hq/firewall/pkg/firewall"
)

// ClaimsPerSource is how many factual claims one source is expected to back.
const ClaimsPerSource = 3

// minSourceLength is the length below which a source reference is noted as
// suspiciously short. Sources are never fetched.
const minSourceLength = 5

// Assess compares the claim set against the supplied sources. Evidence is a
// presence check: a factual claim is sufficiently evidenced iff at least one
// valid source exists. Speculative and opinion claims never require evidence.
//
// nonFactualGap is the evidence gap applied to outputs without factual
// claims when no source is present; it lowers Score for hedged or opinion
// content that arrives with no references at all.
func Assess(claims []firewall.Claim, sources []string, nonFactualGap float64) firewall.EvidenceAssessment {
	valid := len(sources)

	a := firewall.EvidenceAssessment{
		ValidSources: valid,
		PerClaim:     make([]firewall.ClaimEvidence, 0, len(claims)),
	}

	for _, c := range claims {
		required := c.Kind == firewall.ClaimFactual
		a.PerClaim = append(a.PerClaim, firewall.ClaimEvidence{
			Claim:      c.Text,
			Required:   required,
			Sufficient: !required || valid > 0,
		})
		if required {
			a.ClaimsRequiringEvidence++
		}
	}

	for _, s := range sources {
		if len(s) < minSourceLength {
			a.QualityNotes = append(a.QualityNotes, fmt.Sprintf("source %q is unusually short", s))
		}
	}

	if a.ClaimsRequiringEvidence == 0 {
		a.Coverage = firewall.CoverageNone
		a.Sufficient = true
		a.Score = 1
		if valid == 0 {
			a.Score = clamp01(1 - nonFactualGap)
		}
		return a
	}

	a.RequiredSources = a.ClaimsRequiringEvidence / ClaimsPerSource
	if a.RequiredSources < 1 {
		a.RequiredSources = 1
	}

	switch {
	case valid == 0:
		a.Coverage = firewall.CoverageMissing
	case valid < a.RequiredSources:
		a.Coverage = firewall.CoveragePartial
	default:
		a.Coverage = firewall.CoverageFull
	}

	a.Sufficient = a.Coverage == firewall.CoverageFull
	a.Score = clamp01(float64(valid) / float64(a.RequiredSources))

	return a
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
