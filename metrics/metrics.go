package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engagement fetch chain
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_fetch_attempts_total",
			Help: "Fetch attempts per source and outcome",
		},
		[]string{"source", "outcome"}, // outcome: success, failure, skipped, not_found
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engagement_fetch_duration_seconds",
			Help:    "Duration of engagement fetch calls per source",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	FetchUnavailable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engagement_fetch_unavailable_total",
			Help: "Fetches where every source failed",
		},
	)

	EngagementCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_cache_hits_total",
			Help: "Engagement cache hits by kind",
		},
		[]string{"kind"},
	)

	EngagementCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_cache_misses_total",
			Help: "Engagement cache misses by kind",
		},
		[]string{"kind"},
	)

	// Circuit breaker (0 = closed, 1 = half-open, 2 = open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Consecutive failures seen by the circuit breaker",
		},
		[]string{"name"},
	)

	// Points and posts
	PointsAwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_awarded_total",
			Help: "Points credited to users, by reason kind",
		},
		[]string{"kind"}, // post, quest, manual
	)

	PostSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_submissions_total",
			Help: "Post submissions by outcome",
		},
		[]string{"outcome"},
	)

	MonitorRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auto_monitor_runs_total",
			Help: "Auto-monitoring batch runs by outcome",
		},
		[]string{"outcome"},
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordHTTP observes one finished request.
func RecordHTTP(method, route string, status int, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
