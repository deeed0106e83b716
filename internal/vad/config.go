package vad

import "serveturn/detector/internal/types"

// Config describes how a sample stream is framed and merged into segments.
// Sample rate and frame length are hard limits of the frame decision.
type Config struct {
	SampleRate     int
	FrameMs        int
	Aggressiveness int
	MinSpeechMs    int
	MinSilenceMs   int
	// Adaptive raises the energy threshold with a running noise floor.
	Adaptive bool
}

func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		FrameMs:        30,
		Aggressiveness: 2,
		MinSpeechMs:    100,
		MinSilenceMs:   300,
	}
}

func (c Config) Validate() error {
	switch c.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return types.NewConfigError("sample_rate", c.SampleRate, "must be 8000, 16000, 32000 or 48000")
	}
	switch c.FrameMs {
	case 10, 20, 30:
	default:
		return types.NewConfigError("frame_ms", c.FrameMs, "must be 10, 20 or 30")
	}
	if c.Aggressiveness < 0 || c.Aggressiveness > 3 {
		return types.NewConfigError("aggressiveness", c.Aggressiveness, "must be between 0 and 3")
	}
	if c.MinSpeechMs < 0 {
		return types.NewConfigError("min_speech_ms", c.MinSpeechMs, "must not be negative")
	}
	if c.MinSilenceMs < 0 {
		return types.NewConfigError("min_silence_ms", c.MinSilenceMs, "must not be negative")
	}
	return nil
}

// FrameSize is the number of samples in one frame.
func (c Config) FrameSize() int { return c.SampleRate * c.FrameMs / 1000 }

func (c Config) frameTime(idx int) float64 { return float64(idx*c.FrameMs) / 1000 }
