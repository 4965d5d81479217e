package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics, registered once with the default registry.
var (
	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dante_session_evaluations_total",
			Help: "Total number of expressions evaluated by the engine session",
		},
		[]string{"outcome"},
	)
	evaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dante_session_evaluation_duration_seconds",
			Help:    "Duration of engine evaluations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
	)
	gateHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dante_session_busy",
			Help: "1 while an operation holds the engine session",
		},
	)
)
