package audit

import (
	"strings"

	"aegis-hq/firewall/pkg/firewall"
)

// MaxQueryLimit is the largest page a single query may request.
const MaxQueryLimit = 10000

// Validate checks the query for invalid values and normalizes case.
func (q *Query) Validate() error {
	if q.Limit < 0 {
		return &QueryError{Field: "limit", Message: "must be non-negative"}
	}
	if q.Limit > MaxQueryLimit {
		return &QueryError{Field: "limit", Message: "must not exceed 10000"}
	}
	if q.Offset < 0 {
		return &QueryError{Field: "offset", Message: "must be non-negative"}
	}
	if q.AfterSequence < 0 {
		return &QueryError{Field: "after_sequence", Message: "must be non-negative"}
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return &QueryError{Field: "start_time", Message: "must not be after end_time"}
	}
	if q.MinRisk != nil && (*q.MinRisk < 0 || *q.MinRisk > 1) {
		return &QueryError{Field: "min_risk", Message: "must be within [0,1]"}
	}

	q.Order = strings.ToLower(q.Order)
	switch q.Order {
	case "", "asc", "desc":
	default:
		return &QueryError{Field: "order", Message: `must be "asc" or "desc"`}
	}

	if q.Verdict != "" {
		v, ok := firewall.ParseVerdict(q.Verdict)
		if !ok {
			return &QueryError{Field: "verdict", Message: "unknown verdict " + q.Verdict}
		}
		q.Verdict = string(v)
	}
	if q.Action != "" {
		q.Action = string(firewall.NormalizeAction(q.Action))
	}
	return nil
}

// Matches reports whether a record satisfies the query filters. Pagination
// and ordering are not considered.
func (q *Query) Matches(r *Record) bool {
	if q.StartTime != nil && r.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && r.Timestamp.After(*q.EndTime) {
		return false
	}
	if q.EvaluationID != "" && r.EvaluationID != q.EvaluationID {
		return false
	}
	if q.Verdict != "" && string(r.Result.Verdict) != q.Verdict {
		return false
	}
	if q.Action != "" && r.Action != q.Action {
		return false
	}
	if q.Mode != "" && r.Mode != q.Mode {
		return false
	}
	if q.MinRisk != nil && r.Result.RiskScore < *q.MinRisk {
		return false
	}
	if r.Sequence <= q.AfterSequence {
		return false
	}
	return true
}
