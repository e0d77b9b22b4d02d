package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"aegis-hq/firewall/pkg/config"
)

// EvaluationMetrics tracks firewall evaluations.
//
// Metrics:
//   - aegis_firewall_evaluations_total: evaluations by mode, action and verdict
//   - aegis_firewall_evaluation_duration_seconds: evaluation latency by mode
//   - aegis_firewall_risk_score: risk score distribution by mode
//   - aegis_firewall_decisive_rules_total: decisive rule counts
//   - aegis_firewall_failed_checks_total: failed check counts
//   - aegis_firewall_hallucination_blocks_total: caught hallucinations
//   - aegis_firewall_validation_errors_total: rejected requests by field
type EvaluationMetrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	riskScore          *prometheus.HistogramVec
	decisiveRules      *prometheus.CounterVec
	failedChecks       *prometheus.CounterVec
	hallucinations     *prometheus.CounterVec
	validationErrors   *prometheus.CounterVec
}

// NewEvaluationMetrics creates and registers evaluation metrics with the
// provided registry.
func NewEvaluationMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EvaluationMetrics {
	em := &EvaluationMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluations_total",
				Help:      "Total number of evaluations by verdict",
			},
			[]string{"mode", "action", "verdict"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of evaluations in seconds",
				Buckets:   cfg.EvaluationDurationBuckets,
			},
			[]string{"mode"},
		),

		riskScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "risk_score",
				Help:      "Distribution of computed risk scores",
				Buckets:   cfg.RiskScoreBuckets,
			},
			[]string{"mode"},
		),

		decisiveRules: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisive_rules_total",
				Help:      "Total number of verdicts decided by each rule",
			},
			[]string{"mode", "rule"},
		),

		failedChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "failed_checks_total",
				Help:      "Total number of failed checks",
			},
			[]string{"mode", "check"},
		),

		hallucinations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "hallucination_blocks_total",
				Help:      "Total number of blocked high-confidence outputs lacking evidence",
			},
			[]string{"mode"},
		),

		validationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "validation_errors_total",
				Help:      "Total number of requests rejected as malformed",
			},
			[]string{"field"},
		),
	}

	registry.MustRegister(
		em.evaluationsTotal,
		em.evaluationDuration,
		em.riskScore,
		em.decisiveRules,
		em.failedChecks,
		em.hallucinations,
		em.validationErrors,
	)

	return em
}

// Record records one evaluation.
func (em *EvaluationMetrics) Record(mode, action, verdict, rule string, risk float64, duration time.Duration) {
	em.evaluationsTotal.WithLabelValues(mode, action, verdict).Inc()
	em.evaluationDuration.WithLabelValues(mode).Observe(duration.Seconds())
	em.riskScore.WithLabelValues(mode).Observe(risk)
	em.decisiveRules.WithLabelValues(mode, rule).Inc()
}

// RecordFailedCheck records one failed check.
func (em *EvaluationMetrics) RecordFailedCheck(mode, check string) {
	em.failedChecks.WithLabelValues(mode, check).Inc()
}

// RecordHallucinationBlock records a caught hallucination.
func (em *EvaluationMetrics) RecordHallucinationBlock(mode string) {
	em.hallucinations.WithLabelValues(mode).Inc()
}

// RecordValidationError records a malformed request.
func (em *EvaluationMetrics) RecordValidationError(field string) {
	em.validationErrors.WithLabelValues(field).Inc()
}
