package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stream_sessions_active",
		Help: "1 while a listening session is open",
	})

	metricSegments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_segments_total",
		Help: "Classified live segments by speaker",
	}, []string{"speaker"}) // child, adult, uncertain

	metricQueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_segments_dropped_total",
		Help: "Closed runs dropped because the classification queue was full",
	})

	metricMoments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_moments_total",
		Help: "Child speech answered by an adult inside the window",
	})

	metricWindowsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_windows_closed_total",
		Help: "Conversation windows that closed without a reply",
	})

	metricResponseTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stream_response_seconds",
		Help:    "Gap between the end of child speech and the adult reply",
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 8, 12, 15},
	})
)
