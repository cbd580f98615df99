package momo

import "github.com/prometheus/client_golang/prometheus"

var (
	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "momo_requests_total",
			Help: "MoMo gateway calls by facet, operation and outcome.",
		},
		[]string{"facet", "operation", "outcome"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "momo_request_duration_seconds",
			Help:    "MoMo gateway call latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"facet", "operation"},
	)

	tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "momo_token_refreshes_total",
			Help: "OAuth token exchanges by facet and outcome.",
		},
		[]string{"facet", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(gatewayRequests, gatewayDuration, tokenRefreshes)
}
