package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"aegis-hq/firewall/pkg/config"
)

// LearningMetrics tracks the threshold learner.
//
// Metrics:
//   - aegis_firewall_outcomes_total: outcome reports by mode, check and classification
//   - aegis_firewall_threshold_adjustments_total: installed adjustments
//   - aegis_firewall_threshold: current thresholds per mode
type LearningMetrics struct {
	outcomes    *prometheus.CounterVec
	adjustments *prometheus.CounterVec
	thresholds  *prometheus.GaugeVec
}

// NewLearningMetrics creates and registers learner metrics with the
// provided registry.
func NewLearningMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LearningMetrics {
	lm := &LearningMetrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "outcomes_total",
				Help:      "Total number of processed human outcome reports",
			},
			[]string{"mode", "check", "classification"},
		),
		adjustments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "threshold_adjustments_total",
				Help:      "Total number of threshold adjustments installed by the learner",
			},
			[]string{"mode", "check", "direction"},
		),
		thresholds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "threshold",
				Help:      "Current threshold values per mode",
			},
			[]string{"mode", "threshold"},
		),
	}

	registry.MustRegister(lm.outcomes, lm.adjustments, lm.thresholds)
	return lm
}

// SetThresholds sets the threshold gauges of a mode.
func (lm *LearningMetrics) SetThresholds(mode string, evidenceConfidence, riskMedium, riskHigh float64) {
	lm.thresholds.WithLabelValues(mode, "evidence_confidence").Set(evidenceConfidence)
	lm.thresholds.WithLabelValues(mode, "risk_medium").Set(riskMedium)
	lm.thresholds.WithLabelValues(mode, "risk_high").Set(riskHigh)
}
