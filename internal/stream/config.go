package stream

import (
	"time"

	"serveturn/detector/internal/speaker"
	"serveturn/detector/internal/types"
	"serveturn/detector/internal/vad"
)

type Config struct {
	SampleRate     int
	FrameMs        int
	Aggressiveness int
	Adaptive       bool

	ChildThreshold float64
	MinConfidence  float64
	// Window is how long a child's speech stays open for an adult reply.
	Window         time.Duration
	MinChildSpeech time.Duration
	IgnoreShorter  time.Duration
	// HangoverFrames silent frames in a row close a speech run.
	HangoverFrames int

	Heartbeat time.Duration
	QueueSize int
}

func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		FrameMs:        30,
		Aggressiveness: 2,
		ChildThreshold: 280,
		MinConfidence:  0.85,
		Window:         15 * time.Second,
		MinChildSpeech: 500 * time.Millisecond,
		IgnoreShorter:  300 * time.Millisecond,
		HangoverFrames: 14,
		Heartbeat:      2 * time.Second,
		QueueSize:      8,
	}
}

// ApplyProfile takes the child threshold, window and minimum speech length
// from an age profile.
func (c *Config) ApplyProfile(p speaker.Profile) {
	c.ChildThreshold = p.PitchThresholdHz
	c.Window = time.Duration(p.ResponseWindowS * float64(time.Second))
	c.MinChildSpeech = time.Duration(p.MinSpeechMs) * time.Millisecond
}

func (c Config) vadConfig() vad.Config {
	v := vad.DefaultConfig()
	v.SampleRate = c.SampleRate
	v.FrameMs = c.FrameMs
	v.Aggressiveness = c.Aggressiveness
	v.Adaptive = c.Adaptive
	return v
}

func (c Config) Validate() error {
	if err := c.vadConfig().Validate(); err != nil {
		return err
	}
	if c.MinChildSpeech < 0 {
		return types.NewConfigError("min_child_speech", c.MinChildSpeech, "must not be negative")
	}
	if c.IgnoreShorter < 0 {
		return types.NewConfigError("ignore_shorter", c.IgnoreShorter, "must not be negative")
	}
	if c.Heartbeat <= 0 {
		return types.NewConfigError("heartbeat", c.Heartbeat, "must be positive")
	}
	if c.QueueSize < 1 {
		return types.NewConfigError("queue_size", c.QueueSize, "must be at least 1")
	}
	return nil
}
