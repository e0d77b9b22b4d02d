// Package firewall defines the request, claim and verdict types shared by the
// decision pipeline.
//
// The pipeline itself lives in sub-packages:
//
//   - claims: sentence splitting and factual/speculative/opinion classification
//   - evidence: evidence sufficiency and confidence alignment
//   - risk: weighted risk score
//   - rules: safety patterns and governance mandatory-review rules
//   - engine: the verdict resolver that combines everything
//
// # Verdicts
//
// Every evaluation returns exactly one of ALLOW, REQUIRE_EVIDENCE,
// REQUIRE_HUMAN_REVIEW or BLOCK. An unsafe or ungrounded output is a
// decision, not an error. Only malformed requests produce a
// *ValidationError.
package firewall
