package audio

import "math"

// Synthetic voices used by tests and the synth command: a fundamental plus two
// harmonics with a short attack and decay, scaled to 0.8.
const (
	ChildHz = 300
	AdultHz = 150
)

type toneOptions struct {
	amplitude float64
	attack    float64
	decay     float64
}

// ToneOption configures Tone.
type ToneOption func(*toneOptions)

// WithAmplitude scales the tone; default 0.8.
func WithAmplitude(a float64) ToneOption {
	return func(o *toneOptions) { o.amplitude = a }
}

// WithEnvelope sets attack and decay lengths in seconds; defaults 0.05 and 0.1.
func WithEnvelope(attack, decay float64) ToneOption {
	return func(o *toneOptions) {
		o.attack = attack
		o.decay = decay
	}
}

// Tone renders a harmonic tone of the given duration.
func Tone(freq, seconds float64, sampleRate int, opts ...ToneOption) []float32 {
	o := toneOptions{amplitude: 0.8, attack: 0.05, decay: 0.1}
	for _, opt := range opts {
		opt(&o)
	}
	n := int(float64(sampleRate) * seconds)
	out := make([]float32, n)
	attack := int(o.attack * float64(sampleRate))
	decay := int(o.decay * float64(sampleRate))
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		v := 0.5*math.Sin(2*math.Pi*freq*t) +
			0.3*math.Sin(2*math.Pi*2*freq*t) +
			0.2*math.Sin(2*math.Pi*3*freq*t)
		env := 1.0
		if i < attack {
			env = ramp(i, attack)
		}
		if j := i - (n - decay); decay > 0 && j >= 0 {
			env = 1 - ramp(j, decay)
		}
		out[i] = float32(v * env * o.amplitude)
	}
	return out
}

// ramp mirrors an inclusive linspace(0, 1, n).
func ramp(i, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(i) / float64(n-1)
}

func Silence(seconds float64, sampleRate int) []float32 {
	return make([]float32, int(float64(sampleRate)*seconds))
}

// Part is one piece of a scenario: a tone at Hz, or silence when Hz is 0.
type Part struct {
	Hz      float64
	Seconds float64
}

// Compose renders parts back to back.
func Compose(sampleRate int, parts ...Part) []float32 {
	var out []float32
	for _, p := range parts {
		if p.Hz == 0 {
			out = append(out, Silence(p.Seconds, sampleRate)...)
			continue
		}
		out = append(out, Tone(p.Hz, p.Seconds, sampleRate)...)
	}
	return out
}

// Scenarios are the reference recordings: a child serve answered quickly, one
// left unanswered, and a three-exchange sequence.
var Scenarios = map[string][]Part{
	"successful": {
		{0, 0.5}, {ChildHz, 1.0}, {0, 0.5}, {AdultHz, 1.5}, {0, 0.5},
	},
	"missed": {
		{0, 0.5}, {ChildHz, 1.0}, {0, 6.0}, {AdultHz, 1.0}, {0, 0.5},
	},
	"multiple": {
		{0, 0.3}, {ChildHz, 0.8}, {0, 0.5}, {AdultHz, 1.0}, {0, 1.0},
		{ChildHz, 1.0}, {0, 5.5},
		{ChildHz, 0.7}, {0, 1.0}, {AdultHz, 1.2}, {0, 0.5},
	},
	"silence": {
		{0, 5.0},
	},
}
