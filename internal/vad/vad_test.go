package vad

import (
	"errors"
	"math"
	"testing"

	"serveturn/detector/internal/audio"
	"serveturn/detector/internal/types"
)

const sr = 16000

func sine(freq, amp float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/sr))
	}
	return out
}

func near(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"sample rate", func(c *Config) { c.SampleRate = 44100 }},
		{"frame ms", func(c *Config) { c.FrameMs = 25 }},
		{"aggressiveness", func(c *Config) { c.Aggressiveness = 4 }},
		{"min speech", func(c *Config) { c.MinSpeechMs = -1 }},
		{"min silence", func(c *Config) { c.MinSilenceMs = -1 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mut(&cfg)
		if _, err := New(cfg); !errors.Is(err, types.ErrConfig) {
			t.Errorf("%s: expected config error, got %v", tc.name, err)
		}
	}
	for _, rate := range []int{8000, 16000, 32000, 48000} {
		for _, ms := range []int{10, 20, 30} {
			cfg := DefaultConfig()
			cfg.SampleRate, cfg.FrameMs = rate, ms
			if _, err := New(cfg); err != nil {
				t.Errorf("rate=%d ms=%d should be valid: %v", rate, ms, err)
			}
		}
	}
}

func TestFrameThresholds(t *testing.T) {
	quiet := sine(1000, 0.02, 480)
	if !NewFrameClassifier(0, false).IsSpeech(quiet) {
		t.Error("quiet tone should pass the least aggressive threshold")
	}
	if NewFrameClassifier(2, false).IsSpeech(quiet) {
		t.Error("quiet tone should not pass aggressiveness 2")
	}
	if NewFrameClassifier(3, false).IsSpeech(make([]float32, 480)) {
		t.Error("silence must never be speech")
	}
}

func TestFrameLowZCRNeedsMoreEnergy(t *testing.T) {
	// 100 Hz has a crossing rate well under 0.05
	tone := sine(100, 0.036, 480) // rms ~0.0255
	if NewFrameClassifier(2, false).IsSpeech(tone) {
		t.Error("low crossing rate tone below 1.5x threshold should be rejected")
	}
	if !NewFrameClassifier(2, false).IsSpeech(sine(100, 0.05, 480)) {
		t.Error("low crossing rate tone above 1.5x threshold should pass")
	}
}

func TestAdaptiveThreshold(t *testing.T) {
	frame := sine(1000, 0.035, 480) // rms ~0.025
	if !NewFrameClassifier(1, false).IsSpeech(frame) {
		t.Fatal("static classifier should accept the frame")
	}
	if NewFrameClassifier(1, true).IsSpeech(frame) {
		t.Fatal("adaptive classifier starts above the static threshold")
	}
}

func TestSilenceHasNoSegments(t *testing.T) {
	d, _ := New(DefaultConfig())
	if segs := d.Detect(audio.Silence(5, sr)); len(segs) != 0 {
		t.Fatalf("expected no segments, got %d", len(segs))
	}
	if segs := d.Detect(nil); len(segs) != 0 {
		t.Fatalf("expected no segments for empty input, got %d", len(segs))
	}
}

func TestDetectsChildAndAdult(t *testing.T) {
	d, _ := New(DefaultConfig())
	segs := d.Detect(audio.Compose(sr, audio.Scenarios["successful"]...))
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(segs), segs)
	}
	if !near(segs[0].Start, 0.5, 0.06) || !near(segs[0].End, 1.5, 0.06) {
		t.Errorf("child segment at %.2f-%.2f", segs[0].Start, segs[0].End)
	}
	if !near(segs[1].Start, 2.0, 0.06) || !near(segs[1].End, 3.5, 0.06) {
		t.Errorf("adult segment at %.2f-%.2f", segs[1].Start, segs[1].End)
	}
	for _, s := range segs {
		want := int(math.Round(s.Duration() * sr))
		if len(s.Samples) != want {
			t.Errorf("segment samples %d, want %d", len(s.Samples), want)
		}
	}
}

func TestShortPauseIsMerged(t *testing.T) {
	d, _ := New(DefaultConfig())
	in := audio.Compose(sr, audio.Part{Seconds: 0.3}, audio.Part{Hz: 200, Seconds: 0.5},
		audio.Part{Seconds: 0.2}, audio.Part{Hz: 200, Seconds: 0.5}, audio.Part{Seconds: 0.5})
	if segs := d.Detect(in); len(segs) != 1 {
		t.Fatalf("expected one merged segment, got %d", len(segs))
	}
}

func TestShortBlipIsDiscarded(t *testing.T) {
	d, _ := New(DefaultConfig())
	blip := audio.Tone(200, 0.06, sr, audio.WithEnvelope(0, 0))
	in := append(audio.Silence(0.3, sr), blip...)
	in = append(in, audio.Silence(0.6, sr)...)
	if segs := d.Detect(in); len(segs) != 0 {
		t.Fatalf("expected blip to be discarded, got %+v", segs)
	}
}

func TestTrailingSegmentIsClosed(t *testing.T) {
	d, _ := New(DefaultConfig())
	in := append(audio.Silence(0.3, sr), audio.Tone(200, 0.6, sr, audio.WithEnvelope(0, 0))...)
	segs := d.Detect(in)
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if !near(segs[0].Start, 0.3, 1e-9) || !near(segs[0].End, 0.9, 1e-9) {
		t.Fatalf("trailing segment at %.3f-%.3f", segs[0].Start, segs[0].End)
	}
}

func TestTrackerAcrossBlocks(t *testing.T) {
	tr, err := NewTracker(DefaultConfig(), 14, 300)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	in := audio.Compose(sr, audio.Scenarios["successful"]...)
	var closed []Closed
	for len(in) > 0 {
		n := 700
		if n > len(in) {
			n = len(in)
		}
		closed = append(closed, tr.Push(in[:n])...)
		in = in[n:]
	}
	if len(closed) != 2 {
		t.Fatalf("expected 2 closed runs, got %d", len(closed))
	}
	for _, c := range closed {
		if c.Short || len(c.Segment.Samples) == 0 {
			t.Fatalf("expected full run, got %+v", c.Segment)
		}
	}
	if !near(closed[1].Segment.Start, 2.0, 0.06) {
		t.Errorf("adult run starts at %.2f", closed[1].Segment.Start)
	}
	if tr.Speaking() {
		t.Error("tracker should be idle after trailing silence")
	}
}

func TestTrackerReportsShortRuns(t *testing.T) {
	tr, _ := NewTracker(DefaultConfig(), 14, 300)
	in := audio.Compose(sr, audio.Part{Seconds: 0.3})
	in = append(in, audio.Tone(200, 0.15, sr, audio.WithEnvelope(0, 0))...)
	in = append(in, audio.Silence(0.6, sr)...)
	closed := tr.Push(in)
	if len(closed) != 1 || !closed[0].Short {
		t.Fatalf("expected a single short run, got %+v", closed)
	}
	if closed[0].Segment.Samples != nil {
		t.Error("short runs carry no samples")
	}
}

func TestTrackerDiscard(t *testing.T) {
	tr, _ := NewTracker(DefaultConfig(), 14, 300)
	tr.Push(audio.Tone(200, 0.6, sr, audio.WithEnvelope(0, 0)))
	if !tr.Speaking() {
		t.Fatal("expected open run")
	}
	tr.Discard()
	if closed := tr.Push(audio.Silence(1, sr)); len(closed) != 0 {
		t.Fatalf("discarded run must not be reported, got %+v", closed)
	}
}

func TestTrackerOpenStart(t *testing.T) {
	tr, _ := NewTracker(DefaultConfig(), 14, 300)
	if _, ok := tr.OpenStart(); ok {
		t.Fatal("no run is open yet")
	}
	tr.Push(audio.Silence(0.3, sr))
	tr.Push(audio.Tone(200, 0.6, sr, audio.WithEnvelope(0, 0)))
	start, ok := tr.OpenStart()
	if !ok || !near(start, 0.3, 1e-9) {
		t.Fatalf("expected open run from 0.3, got %.3f %v", start, ok)
	}
	tr.Push(audio.Silence(1, sr))
	if _, ok := tr.OpenStart(); ok {
		t.Fatal("run should be closed after the hangover")
	}
}

func TestTrackerRejectsBadHangover(t *testing.T) {
	if _, err := NewTracker(DefaultConfig(), 0, 300); !errors.Is(err, types.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}
