// Package rules holds the two binding rule sets of the firewall.
//
// SafetyRules is a pattern-based detector for unsafe instructions,
// disallowed content, action-scoped hazards and contradictions within one
// output. Any match blocks the output.
//
// Governance forces human review for the mandatory-review actions of the
// active policy mode. Only a safety block supersedes it.
package rules
