package pitch

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"serveturn/detector/internal/audio"
	"serveturn/detector/internal/types"
)

func pure(freq float64, sr, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.6 * math.Sin(2*math.Pi*freq*float64(i)/float64(sr)))
	}
	return out
}

func TestPureToneEstimate(t *testing.T) {
	for _, sr := range []int{8000, 16000, 48000} {
		e, err := NewEstimator(sr)
		if err != nil {
			t.Fatalf("estimator: %v", err)
		}
		for _, f := range []float64{110, 200, 320, 440} {
			got, ok := e.EstimateF0(pure(f, sr, sr/20))
			if !ok {
				t.Fatalf("sr=%d f=%v: no estimate", sr, f)
			}
			if math.Abs(got-f) > f*0.015 {
				t.Errorf("sr=%d: want %vHz got %.2f", sr, f, got)
			}
		}
	}
}

func TestHarmonicTones(t *testing.T) {
	e, _ := NewEstimator(16000)
	child, ok := e.RobustF0(audio.Tone(audio.ChildHz, 1.0, 16000))
	if !ok || child <= 250 || child > 500 {
		t.Fatalf("child tone pitch %.1f ok=%v", child, ok)
	}
	adult, ok := e.RobustF0(audio.Tone(audio.AdultHz, 1.0, 16000))
	if !ok || adult <= 75 || adult >= 250 {
		t.Fatalf("adult tone pitch %.1f ok=%v", adult, ok)
	}
	if math.Abs(child-300) > 3 || math.Abs(adult-150) > 3 {
		t.Errorf("expected ~300/150 Hz, got %.1f/%.1f", child, adult)
	}
}

func TestRejections(t *testing.T) {
	e, _ := NewEstimator(16000)
	if _, ok := e.EstimateF0(make([]float32, 800)); ok {
		t.Error("silence must be unvoiced")
	}
	if _, ok := e.EstimateF0(pure(200, 16000, 400)); ok {
		t.Error("buffers shorter than two max lags must be rejected")
	}
	quiet := pure(200, 16000, 800)
	for i := range quiet {
		quiet[i] *= 0.01
	}
	if _, ok := e.EstimateF0(quiet); ok {
		t.Error("near-silent buffer must be rejected")
	}
	rng := rand.New(rand.NewSource(1))
	noise := make([]float32, 800)
	for i := range noise {
		noise[i] = float32(rng.Float64()*2 - 1)
	}
	if _, ok := e.EstimateF0(noise); ok {
		t.Error("white noise should have no periodicity")
	}
	if _, ok := e.RobustF0(make([]float32, 16000)); ok {
		t.Error("silent segment should have no robust pitch")
	}
	if _, ok := e.RobustF0(pure(200, 16000, 700)); ok {
		t.Error("segment shorter than a window should have no robust pitch")
	}
}

func TestDCOffsetIgnored(t *testing.T) {
	e, _ := NewEstimator(16000)
	in := pure(200, 16000, 800)
	for i := range in {
		in[i] += 0.3
	}
	got, ok := e.EstimateF0(in)
	if !ok || math.Abs(got-200) > 2 {
		t.Fatalf("want 200Hz with offset, got %.2f ok=%v", got, ok)
	}
}

func TestMedian(t *testing.T) {
	if m := median([]float64{3, 1, 2}); m != 2 {
		t.Errorf("odd median %v", m)
	}
	if m := median([]float64{4, 1, 3, 2}); m != 2.5 {
		t.Errorf("even median %v", m)
	}
}

func TestEstimatorValidation(t *testing.T) {
	bad := []Estimator{
		{SampleRate: 0, MinF0: 75, MaxF0: 500, Threshold: 0.15},
		{SampleRate: 16000, MinF0: 500, MaxF0: 75, Threshold: 0.15},
		{SampleRate: 16000, MinF0: 75, MaxF0: 500, Threshold: 0},
		{SampleRate: 100, MinF0: 75, MaxF0: 500, Threshold: 0.15},
	}
	for i, e := range bad {
		if err := e.Validate(); !errors.Is(err, types.ErrConfig) {
			t.Errorf("case %d: expected config error, got %v", i, err)
		}
	}
}
