package engine

import (
	"fmt"
	"strings"

	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/firewall/claims"
	"aegis-hq/firewall/pkg/firewall/evidence"
	"aegis-hq/firewall/pkg/firewall/risk"
	"aegis-hq/firewall/pkg/firewall/rules"
	"aegis-hq/firewall/pkg/policy"
)

// Config configures the engine's mode-independent components.
type Config struct {
	Claims *claims.Config
	Safety rules.SafetyConfig
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Claims: claims.DefaultConfig(),
		Safety: rules.DefaultSafetyConfig(),
	}
}

// Engine evaluates AI outputs. It holds only compiled, read-only state and is
// safe for concurrent use.
type Engine struct {
	extractor  *claims.Extractor
	safety     *rules.SafetyRules
	governance rules.Governance
}

// New builds an engine.
func New(cfg Config) (*Engine, error) {
	extractor, err := claims.NewExtractor(cfg.Claims)
	if err != nil {
		return nil, fmt.Errorf("claims: %w", err)
	}
	safety, err := rules.NewSafetyRules(cfg.Safety)
	if err != nil {
		return nil, fmt.Errorf("safety rules: %w", err)
	}
	return &Engine{extractor: extractor, safety: safety}, nil
}

// MustNew is like New but panics on error.
func MustNew(cfg Config) *Engine {
	e, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return e
}

// Evaluate returns the verdict for req under the policy snapshot cfg. It is a
// pure function of its arguments: no clock, randomness or shared mutable
// state is consulted. A malformed request returns a *firewall.ValidationError
// before any work is done; every other outcome is a verdict.
func (e *Engine) Evaluate(req *firewall.Request, cfg *policy.Config) (firewall.VerdictResult, error) {
	if cfg == nil {
		return firewall.VerdictResult{}, policy.NewConfigurationError("", "policy", "no policy snapshot")
	}
	if err := firewall.ValidateRequest(req, cfg.KnowsAction); err != nil {
		return firewall.VerdictResult{}, err
	}

	sources := req.NormalizedSources()
	extracted := e.extractor.Extract(req.OutputText)
	factual := claims.CountKind(extracted, firewall.ClaimFactual)

	ev := evidence.Assess(extracted, sources, cfg.NonFactualEvidenceGap)
	sig := Signals{
		Confidence:        req.Confidence,
		FactualClaimCount: factual,
		Evidence:          ev,
		Alignment:         evidence.Align(extracted, ev, req.Confidence, cfg.Thresholds.EvidenceConfidence),
		Risk:              risk.Score(req.Action, req.Confidence, ev, cfg),
		Safety:            e.safety.Check(req, extracted),
		Governance:        e.governance.Check(req.Action, cfg),
	}

	res := Resolve(sig, cfg.Thresholds)
	results := checks(sig, cfg.Thresholds)

	out := firewall.VerdictResult{
		Verdict:          res.Verdict,
		Reason:           res.Reason,
		RiskScore:        sig.Risk.Score,
		AppliedPolicies:  appliedPolicies(cfg, sig, res),
		EscalationReason: res.EscalationReason,
		FailedChecks:     failedChecks(results),
		Details: firewall.Details{
			Mode:              string(cfg.Mode),
			PolicyVersion:     cfg.Version,
			DecisiveRule:      res.Rule,
			Claims:            extracted,
			ClaimCount:        len(extracted),
			FactualClaimCount: factual,
			Risk:              sig.Risk,
			RiskLevel:         sig.Risk.Level,
			Evidence:          ev,
			Alignment:         sig.Alignment,
			Safety:            sig.Safety,
			Governance:        sig.Governance,
			Checks:            results,
		},
	}
	if len(extracted) > 0 {
		aligned := sig.Alignment.Aligned
		out.ConfidenceAlignment = &aligned
	}
	out.Explanation = explain(cfg, extracted, sig, res)
	return out, nil
}

// SafetyRules returns the names of the active safety pattern rules.
func (e *Engine) SafetyRules() []string {
	return e.safety.Rules()
}

func explain(cfg *policy.Config, extracted []firewall.Claim, s Signals, r Resolution) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Verdict %s under %s policy. ", r.Verdict, cfg.Mode)
	fmt.Fprintf(&b, "Extracted %d claim(s): %d factual, %d speculative, %d opinion. ",
		len(extracted), s.FactualClaimCount,
		claims.CountKind(extracted, firewall.ClaimSpeculative),
		claims.CountKind(extracted, firewall.ClaimOpinion))

	if s.Evidence.ClaimsRequiringEvidence > 0 {
		fmt.Fprintf(&b, "Evidence coverage is %s with %d of %d required source(s). ",
			s.Evidence.Coverage, s.Evidence.ValidSources, s.Evidence.RequiredSources)
	} else {
		fmt.Fprintf(&b, "No claims require evidence; %d source(s) supplied. ", s.Evidence.ValidSources)
	}

	if s.Alignment.Aligned {
		fmt.Fprintf(&b, "Confidence %.2f is consistent with the evidence. ", s.Confidence)
	} else {
		fmt.Fprintf(&b, "Confidence is misaligned (%s): %s. ", s.Alignment.Severity, s.Alignment.Reason)
	}

	fmt.Fprintf(&b, "Risk score %.2f (%s) = impact %.3f + confidence %.3f + evidence gap %.3f. ",
		s.Risk.Score, s.Risk.Level, s.Risk.ImpactTerm, s.Risk.ConfidenceTerm, s.Risk.EvidenceTerm)

	fmt.Fprintf(&b, "Decided by %s: %s.", r.Rule, strings.TrimSuffix(r.Reason, "."))
	return b.String()
}
