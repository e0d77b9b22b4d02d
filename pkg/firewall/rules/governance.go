package rules

import (
	"fmt"

	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/policy"
)

// Governance applies the mode's mandatory-review actions. Its zero value is
// ready to use.
type Governance struct{}

// Check reports whether the action requires mandatory human review under
// the given configuration. The result does not depend on confidence,
// evidence or risk.
func (Governance) Check(action firewall.Action, cfg *policy.Config) firewall.GovernanceResult {
	if !cfg.RequiresReview(action) {
		return firewall.GovernanceResult{}
	}
	return firewall.GovernanceResult{
		Triggered: true,
		Rule:      firewall.RuleGovernance,
		Reason: fmt.Sprintf(
			"Governance rule %s: %s actions require mandatory human review in %s policy mode. "+
				"This requirement cannot be overridden by high confidence or evidence presence.",
			firewall.RuleGovernance, action, cfg.Mode),
	}
}
