package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Checkout outcomes.
const (
	outcomeSuccess   = "success"
	outcomeFailed    = "failed"
	outcomeDuplicate = "duplicate"
)

var (
	checkoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_total",
			Help: "Checkouts by outcome",
		},
		[]string{"outcome"},
	)

	checkoutStageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_stage_failures_total",
			Help: "Checkout stage failures by stage",
		},
		[]string{"stage"},
	)

	checkoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkout_duration_seconds",
			Help:    "End-to-end checkout duration",
			Buckets: prometheus.DefBuckets,
		},
	)
)
