// Package analysis runs the offline pipeline over a whole recording: speech
// segmentation, speaker classification and the batch turn policy.
package analysis

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"serveturn/detector/internal/audio"
	"serveturn/detector/internal/speaker"
	"serveturn/detector/internal/turn"
	"serveturn/detector/internal/types"
	"serveturn/detector/internal/vad"
)

type Config struct {
	SampleRate        int
	ResponseThreshold float64
	MissedThreshold   float64
	// ChildThreshold wins when positive; otherwise AgeMonths selects a row
	// of Profiles, and with neither set the default 250 Hz applies.
	ChildThreshold    float64
	AgeMonths         *int
	Profiles          speaker.Profiles
	VADAggressiveness int
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		ResponseThreshold: 3,
		MissedThreshold:   5,
		ChildThreshold:    speaker.DefaultThreshold,
		VADAggressiveness: 2,
	}
}

func (c Config) threshold() float64 {
	if c.ChildThreshold > 0 {
		return c.ChildThreshold
	}
	profiles := c.Profiles
	if len(profiles) == 0 {
		profiles = speaker.DefaultProfiles()
	}
	return profiles.ThresholdForAge(c.AgeMonths)
}

type Analyzer struct {
	cfg        Config
	vad        *vad.Detector
	classifier *speaker.Classifier
	policy     turn.Policy
	log        *logrus.Entry
}

func New(cfg Config) (*Analyzer, error) {
	if cfg.ChildThreshold < 0 {
		return nil, types.NewConfigError("child_threshold_hz", cfg.ChildThreshold, "must not be negative")
	}
	vcfg := vad.DefaultConfig()
	vcfg.SampleRate = cfg.SampleRate
	vcfg.Aggressiveness = cfg.VADAggressiveness
	det, err := vad.New(vcfg)
	if err != nil {
		return nil, err
	}
	policy := turn.BatchPolicy(cfg.ResponseThreshold, cfg.MissedThreshold)
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	cls, err := speaker.NewClassifier(cfg.SampleRate, cfg.threshold(), speaker.DefaultPolicy())
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		cfg:        cfg,
		vad:        det,
		classifier: cls,
		policy:     policy,
		log:        logrus.WithField("component", "analysis"),
	}, nil
}

func (a *Analyzer) ChildThreshold() float64 { return a.classifier.Threshold() }

// Analyze is safe for concurrent use; each call runs its own state machine.
func (a *Analyzer) Analyze(samples []float32) (Result, error) {
	begin := time.Now()
	defer func() { analysisDuration.Observe(time.Since(begin).Seconds()) }()

	segments := a.vad.Detect(samples)
	m, err := turn.New(a.policy)
	if err != nil {
		return Result{}, err
	}

	events := []Event{}
	for _, seg := range segments {
		res := a.classifier.Segment(seg.Samples)
		a.log.WithFields(logrus.Fields{
			"start":   seg.Start,
			"end":     seg.End,
			"speaker": res.Speaker,
			"pitch":   res.Pitch,
		}).Debug("segment classified")

		evs, err := m.Observe(turn.Observation{
			Start:    seg.Start,
			End:      seg.End,
			Speaker:  res.Speaker,
			Pitch:    res.Pitch,
			HasPitch: res.HasPitch,
		})
		if err != nil {
			return Result{}, fmt.Errorf("analyze: %w", err)
		}
		for _, ev := range evs {
			events = append(events, fromTurn(ev))
			analysisEvents.WithLabelValues(string(ev.Type)).Inc()
		}
	}

	res := Result{Events: events, Summary: Summarise(events)}
	a.log.WithFields(logrus.Fields{
		"segments": len(segments),
		"serves":   res.Summary.TotalServes,
		"returns":  res.Summary.TotalReturns,
		"missed":   res.Summary.MissedOpportunities,
	}).Info("analysis complete")
	return res, nil
}

// AnalyzeWAV decodes a WAV stream at the analyzer's sample rate and analyzes it.
func (a *Analyzer) AnalyzeWAV(r io.Reader) (Result, error) {
	samples, err := audio.DecodeWAV(r, a.cfg.SampleRate)
	if err != nil {
		return Result{}, err
	}
	return a.Analyze(samples)
}

// AnalyzeFile loads a WAV file and analyzes it.
func (a *Analyzer) AnalyzeFile(path string) (Result, error) {
	samples, err := audio.LoadWAV(path, a.cfg.SampleRate)
	if err != nil {
		return Result{}, err
	}
	return a.Analyze(samples)
}
