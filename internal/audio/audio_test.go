package audio

import (
	"math"
	"path/filepath"
	"testing"
)

func TestToneEnvelope(t *testing.T) {
	s := Tone(ChildHz, 1.0, 16000)
	if len(s) != 16000 {
		t.Fatalf("expected 16000 samples, got %d", len(s))
	}
	if s[0] != 0 {
		t.Fatalf("attack should start at zero, got %v", s[0])
	}
	if s[len(s)-1] != 0 {
		t.Fatalf("decay should end at zero, got %v", s[len(s)-1])
	}
	var peak float64
	for _, v := range s[8000:8400] {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if peak < 0.5 || peak > 0.8 {
		t.Fatalf("unexpected sustain peak %v", peak)
	}
}

func TestComposeLength(t *testing.T) {
	s := Compose(16000, Scenarios["successful"]...)
	if len(s) != 4*16000 {
		t.Fatalf("expected 4s of audio, got %d samples", len(s))
	}
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	in := Tone(AdultHz, 0.5, 16000)
	if err := SaveWAV(path, in, 16000); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := LoadWAV(path, 16000)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if d := math.Abs(float64(in[i] - out[i])); d > 1e-3 {
			t.Fatalf("sample %d differs by %v", i, d)
		}
	}
}

func TestLoadWAVResamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone48k.wav")
	if err := SaveWAV(path, Tone(AdultHz, 1.0, 48000), 48000); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := LoadWAV(path, 16000)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) < 15900 || len(out) > 16100 {
		t.Fatalf("expected ~16000 samples after resampling, got %d", len(out))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadWAV(filepath.Join(t.TempDir(), "nope.wav"), 16000); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.999, -1, 1.5}
	out := DecodePCM16(EncodePCM16(in))
	want := []float32{0, 0.5, -0.5, 0.999, -1, 1}
	for i := range want {
		if d := math.Abs(float64(out[i] - want[i])); d > 1e-3 {
			t.Fatalf("sample %d: want %v got %v", i, want[i], out[i])
		}
	}
	if n := len(DecodePCM16([]byte{1, 2, 3})); n != 1 {
		t.Fatalf("odd byte should be ignored, got %d samples", n)
	}
}
