// Package speaker labels speech segments as child or adult from their pitch.
package speaker

import (
	"math"

	"serveturn/detector/internal/pitch"
	"serveturn/detector/internal/types"
)

// ConfidencePolicy scores a classification. Pitches between ClearlyAdultHz
// and the child threshold are ambiguous and default to adult.
type ConfidencePolicy struct {
	ClearlyAdultHz    float64
	ChildBase         float64
	ChildSaturationHz float64
	AdultBase         float64
	AdultSpanHz       float64
	AmbiguousBase     float64
	AmbiguousSpan     float64
	MinConfidence     float64
}

func DefaultPolicy() ConfidencePolicy {
	return ConfidencePolicy{
		ClearlyAdultHz:    165,
		ChildBase:         0.8,
		ChildSaturationHz: 350,
		AdultBase:         0.7,
		AdultSpanHz:       80,
		AmbiguousBase:     0.5,
		AmbiguousSpan:     0.3,
		MinConfidence:     0.85,
	}
}

func (p ConfidencePolicy) Validate() error {
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return types.NewConfigError("min_confidence", p.MinConfidence, "must be in [0, 1]")
	}
	if p.ChildSaturationHz <= 0 || p.AdultSpanHz <= 0 {
		return types.NewConfigError("confidence_span", [2]float64{p.ChildSaturationHz, p.AdultSpanHz}, "must be positive")
	}
	return nil
}

// Result is a labelled segment.
type Result struct {
	Speaker    types.Speaker
	Pitch      float64
	HasPitch   bool
	Confidence float64
}

type Classifier struct {
	threshold float64
	policy    ConfidencePolicy
	est       *pitch.Estimator
}

func NewClassifier(sampleRate int, threshold float64, policy ConfidencePolicy) (*Classifier, error) {
	if threshold <= 0 {
		return nil, types.NewConfigError("child_threshold_hz", threshold, "must be positive")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	est, err := pitch.NewEstimator(sampleRate)
	if err != nil {
		return nil, err
	}
	return &Classifier{threshold: threshold, policy: policy, est: est}, nil
}

func (c *Classifier) Threshold() float64 { return c.threshold }

// Classify applies the plain threshold: child at or above it, adult below.
func (c *Classifier) Classify(f0 float64, ok bool) types.Speaker {
	switch {
	case !ok:
		return types.Unknown
	case f0 >= c.threshold:
		return types.Child
	default:
		return types.Adult
	}
}

// ClassifyWithConfidence scores the label. A child label under the minimum
// confidence is reported as unknown, keeping its score.
func (c *Classifier) ClassifyWithConfidence(f0 float64, ok bool) Result {
	r := Result{Speaker: types.Unknown, Pitch: f0, HasPitch: ok}
	if !ok {
		return r
	}
	p := c.policy
	switch {
	case f0 >= c.threshold:
		r.Confidence = math.Min(1, p.ChildBase+(f0-c.threshold)/p.ChildSaturationHz)
		if r.Confidence >= p.MinConfidence {
			r.Speaker = types.Child
		}
	case f0 < p.ClearlyAdultHz:
		r.Confidence = math.Min(1, (p.ClearlyAdultHz-f0)/p.AdultSpanHz+p.AdultBase)
		r.Speaker = types.Adult
	default:
		r.Confidence = p.AmbiguousBase + ((c.threshold-f0)/(c.threshold-p.ClearlyAdultHz))*p.AmbiguousSpan
		r.Speaker = types.Adult
	}
	return r
}

// Segment estimates the segment's robust pitch and applies the plain threshold.
func (c *Classifier) Segment(samples []float32) Result {
	f0, ok := c.est.RobustF0(samples)
	return Result{Speaker: c.Classify(f0, ok), Pitch: f0, HasPitch: ok}
}

// SegmentWithConfidence is Segment with confidence scoring.
func (c *Classifier) SegmentWithConfidence(samples []float32) Result {
	return c.ClassifyWithConfidence(c.est.RobustF0(samples))
}
