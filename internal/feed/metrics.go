package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_subscribers",
		Help: "Connected event feed clients",
	})

	metricPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_messages_total",
		Help: "Feed messages queued to clients",
	})

	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_messages_dropped_total",
		Help: "Feed messages dropped for slow clients",
	})

	metricCaptureConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_capture_connections",
		Help: "Open audio capture connections",
	})

	metricAudioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_audio_bytes_total",
		Help: "PCM bytes received from capture clients",
	})
)
