package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examprep_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "examprep_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// FreeTrialDecisions counts usage requests by outcome: "recorded" or a
	// denial reason.
	FreeTrialDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examprep_freetrial_decisions_total",
			Help: "Free trial usage decisions by outcome.",
		},
		[]string{"outcome"},
	)

	FreeTrialUnitsConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "examprep_freetrial_units_consumed_total",
			Help: "Total quota units recorded against free trial users.",
		},
	)

	PolicyCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examprep_freetrial_policy_cache_lookups_total",
			Help: "Active policy cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	// RetakeDecisions counts retake requests by outcome: "created",
	// "LimitReached" or "NotOwner".
	RetakeDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examprep_retake_decisions_total",
			Help: "Retake decisions by outcome.",
		},
		[]string{"outcome"},
	)

	// RateLimitRejections counts requests refused by the per-client limiter.
	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examprep_http_rate_limit_rejections_total",
			Help: "Requests rejected by the per-client rate limiter.",
		},
		[]string{"limiter"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		FreeTrialDecisions,
		FreeTrialUnitsConsumed,
		PolicyCacheLookups,
		RetakeDecisions,
		RateLimitRejections,
	)
}
