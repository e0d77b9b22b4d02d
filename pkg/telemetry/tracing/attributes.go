package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Firewall-specific keys use the "aegis." namespace.
const (
	AttrEvaluationID  = "aegis.evaluation_id"
	AttrMode          = "aegis.policy.mode"
	AttrPolicyVersion = "aegis.policy.version"
	AttrAction        = "aegis.request.action"
	AttrConfidence    = "aegis.request.confidence"
	AttrSourceCount   = "aegis.request.source_count"
	AttrOutputLength  = "aegis.request.output_length"
	AttrVerdict       = "aegis.verdict"
	AttrDecisiveRule  = "aegis.decisive_rule"
	AttrRiskScore     = "aegis.risk_score"
	AttrClaimCount    = "aegis.claims.total"
	AttrFactualClaims = "aegis.claims.factual"
	AttrFailedChecks  = "aegis.failed_checks"

	AttrHTTPMethod = "http.request.method"
	AttrHTTPRoute  = "http.route"

	AttrErrorMessage = "error.message"
)

// SetRequestAttributes sets the request fingerprint on a span. The output
// text itself is never attached.
func SetRequestAttributes(span trace.Span, action string, confidence float64, sources, outputLength int) {
	span.SetAttributes(
		attribute.String(AttrAction, action),
		attribute.Float64(AttrConfidence, confidence),
		attribute.Int(AttrSourceCount, sources),
		attribute.Int(AttrOutputLength, outputLength),
	)
}

// SetVerdictAttributes sets the evaluation outcome on a span.
func SetVerdictAttributes(span trace.Span, evaluationID, mode, policyVersion, verdict, rule string, risk float64, claims, factual int, failed []string) {
	span.SetAttributes(
		attribute.String(AttrEvaluationID, evaluationID),
		attribute.String(AttrMode, mode),
		attribute.String(AttrPolicyVersion, policyVersion),
		attribute.String(AttrVerdict, verdict),
		attribute.String(AttrDecisiveRule, rule),
		attribute.Float64(AttrRiskScore, risk),
		attribute.Int(AttrClaimCount, claims),
		attribute.Int(AttrFactualClaims, factual),
		attribute.StringSlice(AttrFailedChecks, failed),
	)
}

// SetHTTPAttributes sets the HTTP method and route on a span.
func SetHTTPAttributes(span trace.Span, method, route string) {
	span.SetAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
	)
}

// AddEvent adds a named event with attributes to a span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
