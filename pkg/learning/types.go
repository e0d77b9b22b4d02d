package learning

import (
	"strings"
	"time"

	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/policy"
)

// Decision is a human reviewer's final call on an evaluated output.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionBlock Decision = "block"
)

// ParseDecision accepts allow/approve and block/reject in any case.
func ParseDecision(s string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow", "allowed", "approve", "approved":
		return DecisionAllow, true
	case "block", "blocked", "reject", "rejected", "deny", "denied":
		return DecisionBlock, true
	}
	return "", false
}

// Check names a threshold-governed decision. Safety and governance are
// counted but never tuned.
type Check string

const (
	CheckEvidenceConfidence Check = "evidence_confidence"
	CheckRiskMedium         Check = "risk_medium"
	CheckRiskHigh           Check = "risk_high"
	CheckSafety             Check = "safety"
	CheckGovernance         Check = "governance"
)

// Tunable reports whether the learner may adjust the check's threshold.
func (c Check) Tunable() bool {
	switch c {
	case CheckEvidenceConfidence, CheckRiskMedium, CheckRiskHigh:
		return true
	}
	return false
}

// Outcome is an externally reported human decision. Mode, OriginalVerdict
// and DecisiveRule are only needed for evaluations the learner no longer
// tracks.
type Outcome struct {
	EvaluationID    string           `json:"evaluation_id"`
	HumanDecision   string           `json:"human_decision"`
	Mode            string           `json:"mode,omitempty"`
	OriginalVerdict firewall.Verdict `json:"original_verdict,omitempty"`
	DecisiveRule    string           `json:"decisive_rule,omitempty"`
}

// Classification of an outcome against the original verdict.
type Classification string

const (
	FalsePositive Classification = "false_positive"
	FalseNegative Classification = "false_negative"
	Confirmed     Classification = "confirmed"
)

// OutcomeRecord is a processed outcome as persisted.
type OutcomeRecord struct {
	EvaluationID    string           `json:"evaluation_id"`
	Mode            policy.Mode      `json:"mode"`
	OriginalVerdict firewall.Verdict `json:"original_verdict"`
	DecisiveRule    string           `json:"decisive_rule"`
	HumanDecision   Decision         `json:"human_decision"`
	Check           Check            `json:"check"`
	Classification  Classification   `json:"classification"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Adjustment directions.
const (
	DirectionRelax   = "relax"
	DirectionTighten = "tighten"
	// DirectionReset discards every learned threshold of a mode.
	DirectionReset = "reset"
)

// Adjustment is one threshold move installed into the policy store.
type Adjustment struct {
	Mode      policy.Mode       `json:"mode"`
	Check     Check             `json:"check"`
	Direction string            `json:"direction"`
	Old       policy.Thresholds `json:"old"`
	New       policy.Thresholds `json:"new"`
	Reason    string            `json:"reason"`
	Timestamp time.Time         `json:"timestamp"`
}

// CheckStats are the outcome counters for one mode and check.
type CheckStats struct {
	Mode              policy.Mode `json:"mode"`
	Check             Check       `json:"check"`
	Reports           int         `json:"reports"`
	FalsePositives    int         `json:"false_positives"`
	FalseNegatives    int         `json:"false_negatives"`
	FalsePositiveRate float64     `json:"false_positive_rate"`
	FalseNegativeRate float64     `json:"false_negative_rate"`
	Tunable           bool        `json:"tunable"`
}

// Stats summarizes learner activity.
type Stats struct {
	Enabled         bool              `json:"enabled"`
	Tracked         int               `json:"tracked_evaluations"`
	Reports         int64             `json:"reports"`
	FalsePositives  int64             `json:"false_positives"`
	FalseNegatives  int64             `json:"false_negatives"`
	Confirmed       int64             `json:"confirmed"`
	Dropped         int64             `json:"dropped"`
	RateLimited     int64             `json:"rate_limited"`
	Checks          []CheckStats      `json:"checks"`
	ActiveMode      policy.Mode       `json:"active_mode"`
	Thresholds      policy.Thresholds `json:"thresholds"`
	Tuned           bool              `json:"tuned"`
	Adjustments     []Adjustment      `json:"adjustments"`
	AdjustmentCount int64             `json:"adjustment_count"`
}
