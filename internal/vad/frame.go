package vad

import "math"

// Energy thresholds (RMS of samples in [-1, 1]) per aggressiveness level.
var energyThresholds = [4]float64{0.010, 0.015, 0.020, 0.030}

const (
	zcrLow         = 0.05
	zcrHigh        = 0.5
	zcrPenalty     = 1.5
	noiseAlpha     = 0.995
	noiseFloorMin  = 0.001
	noiseFloorMax  = 0.1
	noiseFloorInit = 0.01
	noiseMargin    = 3.0
)

// FrameClassifier makes the per-frame speech/non-speech decision from RMS
// energy and zero-crossing rate. It is not safe for concurrent use.
type FrameClassifier struct {
	threshold  float64
	adaptive   bool
	noiseFloor float64
}

func NewFrameClassifier(aggressiveness int, adaptive bool) *FrameClassifier {
	if aggressiveness < 0 {
		aggressiveness = 0
	} else if aggressiveness > 3 {
		aggressiveness = 3
	}
	return &FrameClassifier{
		threshold:  energyThresholds[aggressiveness],
		adaptive:   adaptive,
		noiseFloor: noiseFloorInit,
	}
}

// Threshold is the energy a frame currently has to exceed.
func (c *FrameClassifier) Threshold() float64 {
	if c.adaptive {
		return math.Max(c.threshold, c.noiseFloor*noiseMargin)
	}
	return c.threshold
}

func (c *FrameClassifier) IsSpeech(frame []float32) bool {
	metricFrames.Inc()
	energy := RMS(frame)
	threshold := c.Threshold()
	speech := energy > threshold
	if speech {
		// tonal hum and hiss both need a clearer margin
		if zcr := ZeroCrossingRate(frame); zcr < zcrLow || zcr > zcrHigh {
			speech = energy > threshold*zcrPenalty
		}
	}
	if speech {
		metricSpeechFrames.Inc()
	} else if c.adaptive {
		c.noiseFloor = noiseAlpha*c.noiseFloor + (1-noiseAlpha)*energy
		c.noiseFloor = math.Min(math.Max(c.noiseFloor, noiseFloorMin), noiseFloorMax)
	}
	return speech
}

func (c *FrameClassifier) Reset() { c.noiseFloor = noiseFloorInit }

func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// ZeroCrossingRate is the fraction of adjacent sample pairs that change sign.
func ZeroCrossingRate(frame []float32) float64 {
	if len(frame) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i] >= 0) != (frame[i-1] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}
