package pitch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricWindows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitch_voiced_windows_total",
		Help: "Analysis windows that produced an in-range F0",
	})

	metricUnvoiced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitch_unvoiced_segments_total",
		Help: "Segments without a single voiced window",
	})
)
