// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_track_total",
			Help: "Referral tracking calls by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	RewardsIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_rewards_issued_total",
			Help: "Rewards created by the ledger",
		},
		[]string{"type"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_notifications_total",
			Help: "Notification deliveries by event type and result",
		},
		[]string{"type", "result"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
