package vad

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_frames_total",
		Help: "Total frames classified",
	})

	metricSpeechFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_speech_frames_total",
		Help: "Frames classified as speech",
	})

	metricRunStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_run_starts_total",
		Help: "Speech runs opened on live audio",
	})

	metricRunsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_runs_dropped_total",
		Help: "Live speech runs shorter than the ignore length",
	})

	metricSegments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vad_segments_total",
		Help: "Speech segments emitted",
	}, []string{"mode"}) // batch, stream
)
