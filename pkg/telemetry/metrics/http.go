package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"aegis-hq/firewall/pkg/config"
)

// HTTPMetrics tracks the HTTP API.
//
// Metrics:
//   - aegis_firewall_http_requests_total: requests by route, method and status
//   - aegis_firewall_http_request_duration_seconds: request latency by route
//   - aegis_firewall_http_rate_limited_total: requests rejected by the rate limiter
type HTTPMetrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rateLimited prometheus.Counter
}

// NewHTTPMetrics creates and registers HTTP metrics with the provided registry.
func NewHTTPMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *HTTPMetrics {
	hm := &HTTPMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP API requests",
			},
			[]string{"route", "method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP API requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_rate_limited_total",
			Help:      "Total number of HTTP requests rejected by the rate limiter",
		}),
	}

	registry.MustRegister(hm.requests, hm.duration, hm.rateLimited)
	return hm
}

// Record records one request.
func (hm *HTTPMetrics) Record(route, method string, status int, duration time.Duration) {
	hm.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	hm.duration.WithLabelValues(route).Observe(duration.Seconds())
}
