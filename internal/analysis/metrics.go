package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_duration_seconds",
		Help:    "Wall time of one batch analysis.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})
	analysisEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_events_total",
		Help: "Batch turn events produced, by type.",
	}, []string{"type"})
)
