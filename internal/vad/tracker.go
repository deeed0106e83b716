package vad

import "serveturn/detector/internal/types"

// Closed is a speech run the Tracker has finished. Short runs are reported
// without samples so callers can still react to the end of the sound.
type Closed struct {
	Segment types.SpeechSegment
	Short   bool
}

// Tracker is the incremental form of Detector used on live audio. Audio may
// arrive in blocks of any size; frames are cut across block boundaries.
// A Tracker is owned by a single capture goroutine.
type Tracker struct {
	cfg       Config
	cls       *FrameClassifier
	hangover  int
	minFrames int

	carry []float32
	frame int // frames consumed since Reset

	speaking  bool
	start     int
	lastVoice int
	nonSpeech int
	buf       []float32
	gap       []float32
}

// NewTracker closes a run once hangoverFrames consecutive frames are silent and
// reports runs shorter than ignoreMs as Short.
func NewTracker(cfg Config, hangoverFrames, ignoreMs int) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hangoverFrames < 1 {
		return nil, types.NewConfigError("hangover_frames", hangoverFrames, "must be at least 1")
	}
	if ignoreMs < 0 {
		return nil, types.NewConfigError("ignore_ms", ignoreMs, "must not be negative")
	}
	return &Tracker{
		cfg:       cfg,
		cls:       NewFrameClassifier(cfg.Aggressiveness, cfg.Adaptive),
		hangover:  hangoverFrames,
		minFrames: ignoreMs / cfg.FrameMs,
	}, nil
}

// Push feeds samples and returns the runs that closed within them.
func (t *Tracker) Push(samples []float32) []Closed {
	size := t.cfg.FrameSize()
	var out []Closed
	if len(t.carry) > 0 {
		need := size - len(t.carry)
		if len(samples) < need {
			t.carry = append(t.carry, samples...)
			return nil
		}
		t.carry = append(t.carry, samples[:need]...)
		samples = samples[need:]
		if c, ok := t.step(t.carry); ok {
			out = append(out, c)
		}
		t.carry = t.carry[:0]
	}
	for len(samples) >= size {
		if c, ok := t.step(samples[:size]); ok {
			out = append(out, c)
		}
		samples = samples[size:]
	}
	if len(samples) > 0 {
		t.carry = append(t.carry, samples...)
	}
	return out
}

func (t *Tracker) step(frame []float32) (Closed, bool) {
	idx := t.frame
	t.frame++
	voiced := t.cls.IsSpeech(frame)

	if !t.speaking {
		if !voiced {
			return Closed{}, false
		}
		t.speaking = true
		t.start = idx
		t.nonSpeech = 0
		t.buf = append(t.buf[:0], frame...)
		t.gap = t.gap[:0]
		t.lastVoice = idx
		metricRunStarts.Inc()
		return Closed{}, false
	}

	if voiced {
		// a pause shorter than the hangover stays inside the run
		t.buf = append(t.buf, t.gap...)
		t.buf = append(t.buf, frame...)
		t.gap = t.gap[:0]
		t.nonSpeech = 0
		t.lastVoice = idx
		return Closed{}, false
	}

	t.nonSpeech++
	t.gap = append(t.gap, frame...)
	if t.nonSpeech < t.hangover {
		return Closed{}, false
	}
	return t.close(), true
}

func (t *Tracker) close() Closed {
	frames := t.lastVoice - t.start + 1
	seg := types.SpeechSegment{
		Start: t.cfg.frameTime(t.start),
		End:   t.cfg.frameTime(t.lastVoice + 1),
	}
	c := Closed{Segment: seg, Short: frames < t.minFrames}
	if c.Short {
		metricRunsDropped.Inc()
	} else {
		c.Segment.Samples = append([]float32(nil), t.buf...)
		metricSegments.WithLabelValues("stream").Inc()
	}
	t.speaking = false
	t.nonSpeech = 0
	t.buf = t.buf[:0]
	t.gap = t.gap[:0]
	return c
}

// Speaking reports whether a run is open.
func (t *Tracker) Speaking() bool { return t.speaking }

// OpenStart is the start time of the open run, if one is open.
func (t *Tracker) OpenStart() (float64, bool) {
	if !t.speaking {
		return 0, false
	}
	return t.cfg.frameTime(t.start), true
}

// Elapsed is the stream time in seconds covered by complete frames.
func (t *Tracker) Elapsed() float64 { return t.cfg.frameTime(t.frame) }

// Discard drops the open run, if any, without reporting it.
func (t *Tracker) Discard() {
	t.speaking = false
	t.nonSpeech = 0
	t.buf = t.buf[:0]
	t.gap = t.gap[:0]
}

// Reset discards everything and restarts the stream clock at zero.
func (t *Tracker) Reset() {
	t.Discard()
	t.carry = t.carry[:0]
	t.frame = 0
	t.cls.Reset()
}
