package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"aegis-hq/firewall/pkg/config"
)

// Collector owns every Prometheus metric exported by the firewall. It
// manages registration and gives components one place to record into.
//
// Recording methods are cheap and safe for concurrent use. When the
// collector is disabled every method is a no-op, so callers never need to
// check.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	evaluations *EvaluationMetrics
	audit       *AuditMetrics
	learning    *LearningMetrics
	policy      *PolicyMetrics
	http        *HTTPMetrics

	// Action labels come from policy packs, so they are bounded here.
	actionLimiter *CardinalityLimiter
}

// NewCollector creates a collector with the specified configuration and
// registry. A nil registry means a fresh one.
//
// Example:
//
//	collector := metrics.NewCollector(&config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "aegis",
//		Subsystem: "firewall",
//	}, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg == nil {
		cfg = &config.MetricsConfig{Enabled: true}
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "aegis"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "firewall"
	}
	if len(cfg.EvaluationDurationBuckets) == 0 {
		// Evaluations are in-process and should finish well under 50ms.
		cfg.EvaluationDurationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1}
	}
	if len(cfg.RiskScoreBuckets) == 0 {
		cfg.RiskScoreBuckets = prometheus.LinearBuckets(0.1, 0.1, 10)
	}

	return &Collector{
		config:        cfg,
		registry:      registry,
		evaluations:   NewEvaluationMetrics(cfg, registry),
		audit:         NewAuditMetrics(cfg, registry),
		learning:      NewLearningMetrics(cfg, registry),
		policy:        NewPolicyMetrics(cfg, registry),
		http:          NewHTTPMetrics(cfg, registry),
		actionLimiter: NewCardinalityLimiter(64),
	}
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordEvaluation records one completed evaluation.
//
// Parameters:
//   - mode: policy mode in effect
//   - action: intended action of the request
//   - verdict: resulting verdict
//   - rule: decisive rule
//   - failedChecks: names of the checks that failed
//   - risk: risk score in [0,1]
//   - hallucination: whether the verdict is a caught hallucination
//   - duration: time spent evaluating
func (c *Collector) RecordEvaluation(mode, action, verdict, rule string, failedChecks []string, risk float64, hallucination bool, duration time.Duration) {
	if !c.Enabled() {
		return
	}
	if !c.actionLimiter.Allow(action) {
		action = "other"
	}
	c.evaluations.Record(mode, action, verdict, rule, risk, duration)
	for _, check := range failedChecks {
		c.evaluations.RecordFailedCheck(mode, check)
	}
	if hallucination {
		c.evaluations.RecordHallucinationBlock(mode)
	}
}

// RecordValidationError records a request rejected before evaluation.
func (c *Collector) RecordValidationError(field string) {
	if !c.Enabled() {
		return
	}
	c.evaluations.RecordValidationError(field)
}

// RecordAuditAppend records a record handed to the audit sink.
func (c *Collector) RecordAuditAppend() {
	if !c.Enabled() {
		return
	}
	c.audit.appended.Inc()
}

// RecordAuditFailure records a failed audit write series.
func (c *Collector) RecordAuditFailure() {
	if !c.Enabled() {
		return
	}
	c.audit.failures.Inc()
}

// SetAuditPending sets the number of records waiting in the audit sink.
func (c *Collector) SetAuditPending(n int) {
	if !c.Enabled() {
		return
	}
	c.audit.pending.Set(float64(n))
}

// RecordChainVerification records the result of a hash chain verification.
func (c *Collector) RecordChainVerification(valid bool, checked int64) {
	if !c.Enabled() {
		return
	}
	c.audit.RecordVerification(valid, checked)
}

// RecordOutcome records a processed human outcome report.
func (c *Collector) RecordOutcome(mode, check, classification string) {
	if !c.Enabled() {
		return
	}
	c.learning.outcomes.WithLabelValues(mode, check, classification).Inc()
}

// RecordAdjustment records an installed threshold adjustment and the
// resulting threshold values.
func (c *Collector) RecordAdjustment(mode, check, direction string, evidenceConfidence, riskMedium, riskHigh float64) {
	if !c.Enabled() {
		return
	}
	c.learning.adjustments.WithLabelValues(mode, check, direction).Inc()
	c.SetThresholds(mode, evidenceConfidence, riskMedium, riskHigh)
}

// SetThresholds exports the thresholds of a mode.
func (c *Collector) SetThresholds(mode string, evidenceConfidence, riskMedium, riskHigh float64) {
	if !c.Enabled() {
		return
	}
	c.learning.SetThresholds(mode, evidenceConfidence, riskMedium, riskHigh)
}

// SetActiveMode marks mode as the active policy mode among modes.
func (c *Collector) SetActiveMode(mode string, modes []string) {
	if !c.Enabled() {
		return
	}
	c.policy.SetActiveMode(mode, modes)
}

// RecordModeChange records a policy mode switch.
func (c *Collector) RecordModeChange(from, to string) {
	if !c.Enabled() {
		return
	}
	c.policy.modeChanges.WithLabelValues(from, to).Inc()
}

// RecordPolicyReload records a policy pack reload attempt.
func (c *Collector) RecordPolicyReload(ok bool) {
	if !c.Enabled() {
		return
	}
	c.policy.RecordReload(ok)
}

// RecordHTTPRequest records one served API request.
func (c *Collector) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	if !c.Enabled() {
		return
	}
	c.http.Record(route, method, status, duration)
}

// RecordRateLimited records a request rejected by the rate limiter.
func (c *Collector) RecordRateLimited() {
	if !c.Enabled() {
		return
	}
	c.http.rateLimited.Inc()
}

// RegisterGaugeFunc exports a value read at scrape time, such as a queue
// depth owned by another component.
func (c *Collector) RegisterGaugeFunc(name, help string, fn func() float64) error {
	if !c.Enabled() {
		return nil
	}
	return c.registry.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      name,
			Help:      help,
		},
		fn,
	))
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values admitted.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether a label value may be used. Values already seen are
// always allowed; new ones only while under the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
