package types

import (
	"math"

	"aegis-hq/firewall/pkg/audit"
	"aegis-hq/firewall/pkg/firewall"
)

// EvaluateRequest is the body of POST /v1/evaluate.
type EvaluateRequest struct {
	OutputText string          `json:"output_text"`
	Confidence *float64        `json:"confidence"`
	Action     firewall.Action `json:"intended_action"`
	Sources    []string        `json:"sources"`
}

// Firewall converts the body into an engine request. A missing confidence
// becomes NaN so validation reports it.
func (r *EvaluateRequest) Firewall() *firewall.Request {
	conf := math.NaN()
	if r.Confidence != nil {
		conf = *r.Confidence
	}
	return &firewall.Request{
		OutputText: r.OutputText,
		Confidence: conf,
		Action:     firewall.NormalizeAction(string(r.Action)),
		Sources:    r.Sources,
	}
}

// SetModeRequest is the body of PUT /v1/policy/mode.
type SetModeRequest struct {
	Mode string `json:"mode"`
}

// OutcomeRequest is the body of POST /v1/outcomes.
type OutcomeRequest struct {
	EvaluationID  string `json:"evaluation_id"`
	HumanDecision string `json:"human_decision"`
}

// OutcomeAccepted is the 202 response to an outcome report.
type OutcomeAccepted struct {
	Status       string `json:"status"`
	EvaluationID string `json:"evaluation_id"`
}

// RecordsResponse is the response of GET /v1/audit/records.
type RecordsResponse struct {
	Records []*audit.Record `json:"records"`
	Count   int             `json:"count"`
	Total   int64           `json:"total"`
}
