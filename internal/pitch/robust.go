package pitch

import "sort"

const (
	windowMs = 50
	hopMs    = 25
)

// RobustF0 estimates F0 on overlapping 50 ms windows with a 25 ms hop and
// returns the median of the estimates strictly inside (MinF0, MaxF0).
func (e *Estimator) RobustF0(samples []float32) (float64, bool) {
	window := e.SampleRate * windowMs / 1000
	hop := e.SampleRate * hopMs / 1000
	if hop < 1 {
		hop = 1
	}
	var estimates []float64
	for i := 0; i < len(samples)-window; i += hop {
		f0, ok := e.EstimateF0(samples[i : i+window])
		if ok && f0 > e.MinF0 && f0 < e.MaxF0 {
			estimates = append(estimates, f0)
		}
	}
	metricWindows.Add(float64(len(estimates)))
	if len(estimates) == 0 {
		metricUnvoiced.Inc()
		return 0, false
	}
	return median(estimates), true
}

func median(v []float64) float64 {
	sort.Float64s(v)
	n := len(v)
	if n%2 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}
