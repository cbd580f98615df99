package services

import "github.com/prometheus/client_golang/prometheus"

var (
	lifecycleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_transitions_total",
			Help: "Applied status transitions by record kind, channel and target status.",
		},
		[]string{"kind", "channel", "status"},
	)

	payoutRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payout_rejections_total",
			Help: "Payouts refused for insufficient balance.",
		},
	)
)

// Lifecycle channels.
const (
	channelWebhook = "webhook"
	channelPoll    = "poll"
)

func init() {
	prometheus.MustRegister(lifecycleTransitions, payoutRejections)
}
