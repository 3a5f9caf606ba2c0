package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus gauges/counters mirroring the same snapshot GetSystemHealth
// returns, registered once at package init the way the teacher's
// middleware.metrics.go registers its vectors with promauto (grounded on
// andreimerfu-pllm/internal/middleware/metrics.go).
var (
	requestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stinger_requests_total",
		Help: "Total number of check_input/check_output calls observed.",
	})

	blockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stinger_blocked_total",
		Help: "Total number of calls a guardrail blocked.",
	})

	responseTimeMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stinger_response_time_milliseconds",
		Help:    "Guardrail pipeline evaluation latency in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	overallStatusGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stinger_overall_status",
		Help: "0 = unhealthy, 1 = degraded, 2 = healthy.",
	})

	pipelineGuardrailsEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stinger_pipeline_guardrails_enabled",
		Help: "Number of currently-enabled guardrails across both stages.",
	})

	rateLimiterTrackedKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stinger_rate_limiter_tracked_keys",
		Help: "Number of keys the global rate limiter currently tracks.",
	})
)

// ObserveRequest feeds one RecordRequest call's data into the Prometheus
// vectors, in addition to the in-process Monitor counters. Callers that
// wire a Monitor into a pipeline typically call both from the same spot.
func ObserveRequest(responseTimeMillis float64, blocked bool) {
	requestsTotal.Inc()
	if blocked {
		blockedTotal.Inc()
	}
	responseTimeMs.Observe(responseTimeMillis)
}

// PublishSnapshot pushes a Snapshot's gauges to the default Prometheus
// registry, for the /metrics?format=prometheus surface to render via
// promhttp.Handler().
func PublishSnapshot(s Snapshot) {
	switch s.OverallStatus {
	case StatusUnhealthy:
		overallStatusGauge.Set(0)
	case StatusDegraded:
		overallStatusGauge.Set(1)
	default:
		overallStatusGauge.Set(2)
	}
	pipelineGuardrailsEnabled.Set(float64(s.PipelineStatus.TotalEnabled))
	rateLimiterTrackedKeys.Set(float64(s.RateLimiterStatus.TotalTrackedKeys))
}
