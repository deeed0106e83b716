// Package pitch estimates the fundamental frequency of voiced audio with a
// cumulative-mean-normalised difference function (YIN).
package pitch

import (
	"math"

	"serveturn/detector/internal/types"
)

const (
	DefaultMinF0     = 75.0
	DefaultMaxF0     = 500.0
	DefaultThreshold = 0.15

	// the global-minimum fallback above this is treated as unvoiced
	unvoicedCeiling = 0.5
	// peak amplitude after mean removal below this is treated as silence
	silenceFloor = 0.01
)

type Estimator struct {
	SampleRate int
	MinF0      float64
	MaxF0      float64
	Threshold  float64
}

func NewEstimator(sampleRate int) (*Estimator, error) {
	e := &Estimator{
		SampleRate: sampleRate,
		MinF0:      DefaultMinF0,
		MaxF0:      DefaultMaxF0,
		Threshold:  DefaultThreshold,
	}
	return e, e.Validate()
}

func (e *Estimator) Validate() error {
	if e.SampleRate <= 0 {
		return types.NewConfigError("sample_rate", e.SampleRate, "must be positive")
	}
	if e.MinF0 <= 0 || e.MaxF0 <= e.MinF0 {
		return types.NewConfigError("f0_range", [2]float64{e.MinF0, e.MaxF0}, "need 0 < min < max")
	}
	if int(float64(e.SampleRate)/e.MaxF0) < 1 {
		return types.NewConfigError("max_f0", e.MaxF0, "above the sample rate resolution")
	}
	if e.Threshold <= 0 || e.Threshold >= 1 {
		return types.NewConfigError("threshold", e.Threshold, "must be in (0, 1)")
	}
	return nil
}

func (e *Estimator) lags() (tauMin, tauMax int) {
	return int(float64(e.SampleRate) / e.MaxF0), int(float64(e.SampleRate) / e.MinF0)
}

// EstimateF0 returns the fundamental frequency of samples in Hz. ok is false
// when the buffer is too short, silent, or has no clear periodicity.
func (e *Estimator) EstimateF0(samples []float32) (f0 float64, ok bool) {
	tauMin, tauMax := e.lags()
	if len(samples) < 2*tauMax {
		return 0, false
	}

	x := make([]float64, len(samples))
	var mean float64
	for i, s := range samples {
		x[i] = float64(s)
		mean += x[i]
	}
	mean /= float64(len(x))
	var peak float64
	for i := range x {
		x[i] -= mean
		peak = math.Max(peak, math.Abs(x[i]))
	}
	if peak < silenceFloor {
		return 0, false
	}

	d := cmnd(x, tauMax)

	tau := -1
	for t := tauMin; t < tauMax-1; t++ {
		if d[t] < e.Threshold && d[t] < d[t-1] && d[t] <= d[t+1] {
			tau = t
			break
		}
	}
	if tau < 0 {
		best := math.Inf(1)
		for t := tauMin; t < tauMax; t++ {
			if d[t] < best {
				best, tau = d[t], t
			}
		}
		if tau < 0 || best > unvoicedCeiling {
			return 0, false
		}
	}

	est := float64(tau)
	if tau > 0 && tau < tauMax-1 {
		s0, s1, s2 := d[tau-1], d[tau], d[tau+1]
		est += (s2 - s0) / (2 * (2*s1 - s2 - s0 + 1e-10))
	}
	if est <= 0 {
		return 0, false
	}
	return float64(e.SampleRate) / est, true
}

// cmnd computes the cumulative-mean-normalised difference for lags
// 0..tauMax-1 over the first len(x)-tauMax samples.
func cmnd(x []float64, tauMax int) []float64 {
	n := len(x) - tauMax
	diff := make([]float64, tauMax)
	for tau := 1; tau < tauMax; tau++ {
		var sum float64
		for j := 0; j < n; j++ {
			v := x[j] - x[j+tau]
			sum += v * v
		}
		diff[tau] = sum
	}

	norm := make([]float64, tauMax)
	norm[0] = 1
	var cum float64
	for tau := 1; tau < tauMax; tau++ {
		cum += diff[tau]
		if cum > 0 {
			norm[tau] = diff[tau] * float64(tau) / cum
		} else {
			norm[tau] = 1
		}
	}
	return norm
}
