package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"aegis-hq/firewall/pkg/config"
)

// PolicyMetrics tracks the policy store.
//
// Metrics:
//   - aegis_firewall_policy_active_mode: 1 for the active mode, 0 otherwise
//   - aegis_firewall_policy_mode_changes_total: mode switches
//   - aegis_firewall_policy_reloads_total: policy pack reloads by result
type PolicyMetrics struct {
	activeMode  *prometheus.GaugeVec
	modeChanges *prometheus.CounterVec
	reloads     *prometheus.CounterVec
}

// NewPolicyMetrics creates and registers policy metrics with the provided registry.
func NewPolicyMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PolicyMetrics {
	pm := &PolicyMetrics{
		activeMode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_active_mode",
				Help:      "Active policy mode (1 = active)",
			},
			[]string{"mode"},
		),
		modeChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_mode_changes_total",
				Help:      "Total number of policy mode switches",
			},
			[]string{"from", "to"},
		),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_reloads_total",
				Help:      "Total number of policy pack reloads by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(pm.activeMode, pm.modeChanges, pm.reloads)
	return pm
}

// SetActiveMode sets the active mode gauge.
func (pm *PolicyMetrics) SetActiveMode(mode string, modes []string) {
	for _, m := range modes {
		pm.activeMode.WithLabelValues(m).Set(0)
	}
	pm.activeMode.WithLabelValues(mode).Set(1)
}

// RecordReload records a reload attempt.
func (pm *PolicyMetrics) RecordReload(ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	pm.reloads.WithLabelValues(result).Inc()
}
