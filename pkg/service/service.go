package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"aegis-hq/firewall/pkg/audit"
	"aegis-hq/firewall/pkg/audit/sink"
	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/firewall/engine"
	"aegis-hq/firewall/pkg/learning"
	"aegis-hq/firewall/pkg/policy"
	"aegis-hq/firewall/pkg/telemetry/logging"
	"aegis-hq/firewall/pkg/telemetry/metrics"
	"aegis-hq/firewall/pkg/telemetry/tracing"
)

// ErrLearningDisabled is returned by ReportOutcome when no learner is
// configured.
var ErrLearningDisabled = errors.New("outcome learning is not configured")

// DefaultPendingInterval is how often Run publishes the audit backlog gauge.
const DefaultPendingInterval = 5 * time.Second

// Options wires a Service. Engine and Policy are required; every other
// dependency is optional.
type Options struct {
	Engine  *engine.Engine
	Policy  *policy.Store
	Sink    *sink.Sink
	Audit   audit.Storage
	Learner *learning.Learner
	Metrics *metrics.Collector
	Tracer  *tracing.Tracer

	// PendingInterval is the audit backlog gauge refresh period.
	// Default: 5s
	PendingInterval time.Duration

	// Clock and NewID are replaceable for tests.
	Clock func() time.Time
	NewID func() string
}

// Evaluation is a verdict stamped with its identity.
type Evaluation struct {
	EvaluationID string    `json:"evaluation_id"`
	Timestamp    time.Time `json:"timestamp"`
	firewall.VerdictResult
}

// Stats is the process-level view returned by Stats.
type Stats struct {
	Counters      CounterSnapshot `json:"counters"`
	Audit         *sink.Stats     `json:"audit,omitempty"`
	Learning      *learning.Stats `json:"learning,omitempty"`
	Mode          policy.Mode     `json:"mode"`
	PolicyVersion string          `json:"policy_version"`
	Tuned         bool            `json:"tuned"`
}

// Service is the firewall facade used by the HTTP server and the CLI. It
// evaluates requests against the active policy snapshot and fans the result
// out to the audit sink, the learner and metrics. Evaluate never blocks on
// I/O.
type Service struct {
	engine  *engine.Engine
	policy  *policy.Store
	sink    *sink.Sink
	audit   audit.Storage
	learner *learning.Learner
	metrics *metrics.Collector
	tracer  *tracing.Tracer

	counters        *Counters
	modes           []string
	pendingInterval time.Duration
	now             func() time.Time
	newID           func() string
	logger          *slog.Logger
}

// New creates a service. When a learner is given its outcome and adjustment
// hooks are bound to metrics, so New must run before the learner is started.
func New(opts Options) (*Service, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("service: engine is required")
	}
	if opts.Policy == nil {
		return nil, fmt.Errorf("service: policy store is required")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.PendingInterval <= 0 {
		opts.PendingInterval = DefaultPendingInterval
	}

	s := &Service{
		engine:          opts.Engine,
		policy:          opts.Policy,
		sink:            opts.Sink,
		audit:           opts.Audit,
		learner:         opts.Learner,
		metrics:         opts.Metrics,
		tracer:          opts.Tracer,
		counters:        NewCounters(opts.Clock()),
		pendingInterval: opts.PendingInterval,
		now:             opts.Clock,
		newID:           opts.NewID,
		logger:          slog.Default().With("component", "service"),
	}

	for _, m := range s.policy.Modes() {
		s.modes = append(s.modes, string(m.Mode))
	}
	s.publishPolicy(s.policy.Snapshot())
	s.policy.OnChange(s.publishPolicy)

	if s.learner != nil {
		s.learner.OnOutcome = func(rec learning.OutcomeRecord) {
			s.metrics.RecordOutcome(string(rec.Mode), string(rec.Check), string(rec.Classification))
		}
		s.learner.OnAdjust = func(adj learning.Adjustment) {
			s.metrics.RecordAdjustment(string(adj.Mode), string(adj.Check), adj.Direction,
				adj.New.EvidenceConfidence, adj.New.RiskMedium, adj.New.RiskHigh)
		}
	}
	return s, nil
}

// publishPolicy runs under the policy store's writer lock; it must only read
// the installed snapshot.
func (s *Service) publishPolicy(cfg *policy.Config) {
	if !s.metrics.Enabled() {
		return
	}
	t := cfg.Thresholds
	s.metrics.SetThresholds(string(cfg.Mode), t.EvidenceConfidence, t.RiskMedium, t.RiskHigh)
	s.metrics.SetActiveMode(string(cfg.Mode), s.modes)
}

// Evaluate runs one request against the active policy. A malformed request
// returns a *firewall.ValidationError; every other outcome is a verdict.
func (s *Service) Evaluate(ctx context.Context, req *firewall.Request) (*Evaluation, error) {
	ctx, span := s.tracer.Start(ctx, "firewall.evaluate")
	defer span.End()

	if req != nil {
		tracing.SetRequestAttributes(span, string(req.Action), req.Confidence,
			len(req.NormalizedSources()), len(req.OutputText))
	}

	cfg := s.policy.Snapshot()
	start := time.Now()
	result, err := s.engine.Evaluate(req, cfg)
	elapsed := time.Since(start)
	if err != nil {
		tracing.SetError(span, err)
		var verr *firewall.ValidationError
		if errors.As(err, &verr) {
			s.metrics.RecordValidationError(verr.Field)
			s.logger.DebugContext(ctx, "Request rejected",
				"field", verr.Field,
				"error", verr.Message,
			)
		}
		return nil, err
	}

	ev := &Evaluation{
		EvaluationID:  s.newID(),
		Timestamp:     s.now().UTC(),
		VerdictResult: result,
	}
	hallucination := firewall.IsHallucinationBlock(&result, req.Confidence)

	tracing.SetVerdictAttributes(span, ev.EvaluationID, result.Details.Mode, result.Details.PolicyVersion,
		string(result.Verdict), result.Details.DecisiveRule, result.RiskScore,
		result.Details.ClaimCount, result.Details.FactualClaimCount, result.FailedChecks)

	s.counters.Record(req.Action, result.Verdict, hallucination)
	s.metrics.RecordEvaluation(result.Details.Mode, string(req.Action), string(result.Verdict),
		result.Details.DecisiveRule, result.FailedChecks, result.RiskScore, hallucination, elapsed)

	ctx = logging.WithEvaluationID(ctx, ev.EvaluationID)
	ctx = logging.WithMode(ctx, result.Details.Mode)
	ctx = logging.WithAction(ctx, string(req.Action))

	if s.sink != nil {
		if err := s.sink.Append(audit.NewRecord(ev.EvaluationID, ev.Timestamp, req, result)); err != nil {
			s.metrics.RecordAuditFailure()
			s.logger.ErrorContext(ctx, "Failed to queue audit record", "error", err)
		} else {
			s.metrics.RecordAuditAppend()
		}
	}
	if s.learner != nil {
		s.learner.Observe(ev.EvaluationID, &result)
	}

	s.logger.DebugContext(ctx, "Evaluation complete",
		"verdict", result.Verdict,
		"rule", result.Details.DecisiveRule,
		"risk_score", result.RiskScore,
		"policy_version", result.Details.PolicyVersion,
		"duration", elapsed,
	)
	return ev, nil
}

// DryRun evaluates req against the active policy without recording it
// anywhere. Benchmarks use it so test prompts stay out of the audit trail.
func (s *Service) DryRun(ctx context.Context, req *firewall.Request) (firewall.VerdictResult, error) {
	_, span := s.tracer.Start(ctx, "firewall.dry_run")
	defer span.End()
	return s.engine.Evaluate(req, s.policy.Snapshot())
}

// SetPolicyMode activates a policy mode. On error the active policy is
// unchanged.
func (s *Service) SetPolicyMode(mode string) (policy.Config, error) {
	prev := s.policy.Snapshot().Mode
	cfg, err := s.policy.SetMode(policy.ParseMode(mode))
	if err != nil {
		return policy.Config{}, err
	}
	s.metrics.RecordModeChange(string(prev), string(cfg.Mode))
	return *cfg.Clone(), nil
}

// GetPolicyMode returns a copy of the active policy.
func (s *Service) GetPolicyMode() policy.Config {
	return s.policy.Get()
}

// ListModes returns the effective configuration of every mode.
func (s *Service) ListModes() []policy.Config {
	modes := s.policy.Modes()
	out := make([]policy.Config, 0, len(modes))
	for _, m := range modes {
		out = append(out, *m)
	}
	return out
}

// ReportOutcome queues a human decision for an earlier evaluation. Outcomes
// for evaluations the learner no longer remembers are resolved from the audit
// trail. Processing is asynchronous.
func (s *Service) ReportOutcome(ctx context.Context, evaluationID, humanDecision string) error {
	if s.learner == nil {
		return ErrLearningDisabled
	}

	o := learning.Outcome{EvaluationID: evaluationID, HumanDecision: humanDecision}
	err := s.learner.Report(ctx, o)
	if !errors.Is(err, learning.ErrUnknownEvaluation) {
		return err
	}

	if s.audit != nil {
		rec, gerr := s.audit.Get(ctx, evaluationID)
		switch {
		case gerr == nil:
			o.Mode = rec.Mode
			o.OriginalVerdict = rec.Result.Verdict
			o.DecisiveRule = rec.Result.Details.DecisiveRule
			return s.learner.Report(ctx, o)
		case !errors.Is(gerr, audit.ErrRecordNotFound):
			s.logger.WarnContext(ctx, "Audit lookup for outcome failed",
				"evaluation_id", evaluationID,
				"error", gerr,
			)
		}
	}
	return firewall.NewValidationError("evaluation_id", evaluationID, "unknown evaluation")
}

// ResetThresholds discards the learned thresholds of a mode.
func (s *Service) ResetThresholds(ctx context.Context, mode string) (policy.Config, error) {
	if s.learner == nil {
		return policy.Config{}, ErrLearningDisabled
	}
	cfg, err := s.learner.ResetThresholds(ctx, policy.ParseMode(mode))
	if err != nil {
		return policy.Config{}, err
	}
	return *cfg.Clone(), nil
}

// LearningStats returns the learner's state. ok is false when learning is
// not configured.
func (s *Service) LearningStats() (stats learning.Stats, ok bool) {
	if s.learner == nil {
		return learning.Stats{}, false
	}
	return s.learner.Stats(), true
}

// Counters returns the runtime verdict counters.
func (s *Service) Counters() *Counters {
	return s.counters
}

// Stats returns verdict counters together with audit and learner state.
func (s *Service) Stats() Stats {
	cfg := s.policy.Snapshot()
	out := Stats{
		Counters:      s.counters.Snapshot(),
		Mode:          cfg.Mode,
		PolicyVersion: cfg.Version,
		Tuned:         cfg.Tuned,
	}
	if s.sink != nil {
		st := s.sink.Stats()
		out.Audit = &st
	}
	if s.learner != nil {
		st := s.learner.Stats()
		out.Learning = &st
	}
	return out
}

// Run reports audit sink failures and refreshes the backlog gauge until ctx
// is done or the sink's failure channel closes.
func (s *Service) Run(ctx context.Context) error {
	if s.sink == nil {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.pendingInterval)
	defer ticker.Stop()

	failures := s.sink.Failures()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ferr, ok := <-failures:
			if !ok {
				return nil
			}
			s.metrics.RecordAuditFailure()
			s.logger.Error("Audit write failed",
				"sequence", ferr.Sequence,
				"evaluation_id", ferr.EvaluationID,
				"attempts", ferr.Attempts,
				"error", ferr.Cause,
			)
		case <-ticker.C:
			s.metrics.SetAuditPending(s.sink.Stats().Pending)
		}
	}
}
