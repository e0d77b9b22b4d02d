package evidence

import (
	"fmt"

	"aegis-hq/firewall/pkg/firewall"
)

// Align checks that the stated confidence is consistent with the claim types
// and the evidence backing them.
//
// A factual claim stated at or above threshold without sufficient evidence
// is a severe misalignment. A speculative claim stated at or above threshold
// with no source at all is a moderate misalignment.
func Align(claims []firewall.Claim, assessment firewall.EvidenceAssessment, confidence, threshold float64) firewall.Alignment {
	if confidence < threshold {
		return firewall.Alignment{Aligned: true, Severity: firewall.SeverityNone}
	}

	var factual, speculative int
	for _, c := range claims {
		switch c.Kind {
		case firewall.ClaimFactual:
			factual++
		case firewall.ClaimSpeculative:
			speculative++
		}
	}

	if factual > 0 && !assessment.Sufficient {
		return firewall.Alignment{
			Aligned:  false,
			Severity: firewall.SeveritySevere,
			Reason: fmt.Sprintf("confidence %.2f on %d factual claim(s) with %s evidence (%d of %d sources)",
				confidence, factual, assessment.Coverage, assessment.ValidSources, assessment.RequiredSources),
		}
	}

	if speculative > 0 && assessment.ValidSources == 0 {
		return firewall.Alignment{
			Aligned:  false,
			Severity: firewall.SeverityModerate,
			Reason: fmt.Sprintf("confidence %.2f on %d speculative claim(s) presented without supporting sources",
				confidence, speculative),
		}
	}

	return firewall.Alignment{Aligned: true, Severity: firewall.SeverityNone}
}
