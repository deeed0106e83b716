// Package capture feeds the live detector from the default microphone.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"serveturn/detector/internal/audio"
	"serveturn/detector/internal/stream"
)

var (
	ErrRunning = errors.New("capture already running")
	ErrStopped = errors.New("capture stopped")
)

var metricPushErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "capture_push_errors_total",
	Help: "Microphone blocks the detector refused",
})

// Sink takes decoded microphone audio.
type Sink interface {
	Push(samples []float32) error
}

// Mic captures mono 16-bit audio at SampleRate and pushes it to Sink from the
// device callback.
type Mic struct {
	SampleRate int
	PeriodMs   int
	Sink       Sink

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	idle atomic.Bool // last push was refused
	log  *logrus.Entry
}

func NewMic(sampleRate int, sink Sink) *Mic {
	return &Mic{
		SampleRate: sampleRate,
		PeriodMs:   30,
		Sink:       sink,
		log:        logrus.WithField("component", "capture"),
	}
}

func (m *Mic) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return ErrRunning
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(m.SampleRate)
	cfg.PeriodSizeInMilliseconds = uint32(m.PeriodMs)

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) { m.onData(in) },
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("start microphone: %w", err)
	}
	m.ctx, m.device = ctx, device
	m.log.WithField("sample_rate", m.SampleRate).Info("microphone started")
	return nil
}

// Running reports whether the device is open.
func (m *Mic) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device != nil
}

func (m *Mic) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return
	}
	_ = m.device.Stop()
	m.device.Uninit()
	_ = m.ctx.Uninit()
	m.ctx.Free()
	m.device, m.ctx = nil, nil
	m.log.Info("microphone stopped")
}

// onData runs on the audio thread. Audio arriving while no session is open is
// dropped quietly.
func (m *Mic) onData(in []byte) {
	if len(in) < 2 {
		return
	}
	err := m.Sink.Push(audio.DecodePCM16(in))
	switch {
	case err == nil:
		m.idle.Store(false)
	case errors.Is(err, stream.ErrNotListening):
		if m.idle.CompareAndSwap(false, true) {
			m.log.Debug("no open session, dropping microphone audio")
		}
	default:
		metricPushErrors.Inc()
		m.log.WithError(err).Warn("push microphone audio")
	}
}
