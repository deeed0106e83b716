package vad

import "serveturn/detector/internal/types"

// Detector splits a complete recording into speech segments.
type Detector struct {
	cfg Config
}

func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

func (d *Detector) Config() Config { return d.cfg }

// Detect returns the speech segments in samples. It keeps no state between
// calls; a trailing partial frame is ignored.
func (d *Detector) Detect(samples []float32) []types.SpeechSegment {
	flags := d.classify(samples)
	segs := d.merge(flags, samples)
	metricSegments.WithLabelValues("batch").Add(float64(len(segs)))
	return segs
}

func (d *Detector) classify(samples []float32) []bool {
	size := d.cfg.FrameSize()
	cls := NewFrameClassifier(d.cfg.Aggressiveness, d.cfg.Adaptive)
	flags := make([]bool, 0, len(samples)/size)
	for i := 0; i+size <= len(samples); i += size {
		flags = append(flags, cls.IsSpeech(samples[i:i+size]))
	}
	return flags
}

func (d *Detector) merge(flags []bool, samples []float32) []types.SpeechSegment {
	var segs []types.SpeechSegment
	size := d.cfg.FrameSize()
	minSilence := d.cfg.MinSilenceMs / d.cfg.FrameMs

	emit := func(start, end, endSample int) {
		if (end-start)*d.cfg.FrameMs < d.cfg.MinSpeechMs {
			return
		}
		from := start * size
		segs = append(segs, types.SpeechSegment{
			Start:   d.cfg.frameTime(start),
			End:     d.cfg.frameTime(end),
			Samples: samples[from:endSample:endSample],
		})
	}

	inSpeech := false
	start, silent := 0, 0
	for i, voiced := range flags {
		if voiced {
			if !inSpeech {
				start = i
				inSpeech = true
			}
			silent = 0
			continue
		}
		if !inSpeech {
			continue
		}
		silent++
		if silent >= minSilence {
			end := i - silent + 1
			emit(start, end, end*size)
			inSpeech = false
			silent = 0
		}
	}
	if inSpeech {
		emit(start, len(flags), len(samples))
	}
	return segs
}
