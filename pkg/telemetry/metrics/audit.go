package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"aegis-hq/firewall/pkg/config"
)

// AuditMetrics tracks the audit sink and chain verification.
//
// Metrics:
//   - aegis_firewall_audit_records_total: records handed to the sink
//   - aegis_firewall_audit_write_failures_total: failed write series
//   - aegis_firewall_audit_pending_records: records not yet persisted
//   - aegis_firewall_audit_verifications_total: chain verifications by result
//   - aegis_firewall_audit_verified_records: records covered by the last verification
type AuditMetrics struct {
	appended      prometheus.Counter
	failures      prometheus.Counter
	pending       prometheus.Gauge
	verifications *prometheus.CounterVec
	verified      prometheus.Gauge
}

// NewAuditMetrics creates and registers audit metrics with the provided
// registry.
func NewAuditMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AuditMetrics {
	am := &AuditMetrics{
		appended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "audit_records_total",
			Help:      "Total number of audit records handed to the sink",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "audit_write_failures_total",
			Help:      "Total number of audit write series that exhausted their retries",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "audit_pending_records",
			Help:      "Number of audit records waiting to be persisted",
		}),
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_verifications_total",
				Help:      "Total number of audit chain verifications by result",
			},
			[]string{"result"},
		),
		verified: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "audit_verified_records",
			Help:      "Number of records checked by the last chain verification",
		}),
	}

	registry.MustRegister(
		am.appended,
		am.failures,
		am.pending,
		am.verifications,
		am.verified,
	)

	return am
}

// RecordVerification records a chain verification.
func (am *AuditMetrics) RecordVerification(valid bool, checked int64) {
	result := "valid"
	if !valid {
		result = "broken"
	}
	am.verifications.WithLabelValues(result).Inc()
	am.verified.Set(float64(checked))
}
