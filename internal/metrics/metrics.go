// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests counts upstream calls by primitive and outcome
	// ("success", "auth_retry", "auth_failed", "unavailable", "error").
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bilipublish_upstream_requests_total",
			Help: "Total number of upstream biliup calls",
		},
		[]string{"operation", "outcome"},
	)

	UpstreamReauth = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bilipublish_upstream_reauth_total",
			Help: "Total number of upstream authentication handshakes",
		},
		[]string{"outcome"},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bilipublish_circuit_breaker_state",
			Help: "Upstream circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	ReconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bilipublish_reconcile_total",
			Help: "Total number of credential reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	LoginResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bilipublish_login_results_total",
			Help: "Total number of QR login confirmations by resulting state",
		},
		[]string{"state"},
	)

	PublishSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bilipublish_publish_submissions_total",
			Help: "Total number of publish submissions by resulting status",
		},
		[]string{"status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bilipublish_api_request_duration_seconds",
			Help:    "Duration of REST API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveAPIRequest records one finished REST request.
func ObserveAPIRequest(method, route string, status int, elapsed time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
