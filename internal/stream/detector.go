// Package stream runs turn detection on live audio. Capture pushes samples,
// a worker classifies closed speech runs, and a heartbeat reports status and
// closes conversation windows that ran out.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"serveturn/detector/internal/speaker"
	"serveturn/detector/internal/store"
	"serveturn/detector/internal/turn"
	"serveturn/detector/internal/types"
	"serveturn/detector/internal/vad"
)

var ErrNotListening = errors.New("not listening")

// Publisher fans feed messages out to connected clients.
type Publisher interface {
	Publish(sessionID, typ string, payload any)
}

type Option func(*Detector)

// WithClock replaces time.Now for session times.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

type Detector struct {
	cfg        Config
	store      *store.Store
	pub        Publisher
	classifier *speaker.Classifier
	now        func() time.Time
	log        *logrus.Entry

	// lifecycle serialises Start and Stop.
	lifecycle sync.Mutex

	// capMu guards the capture side: the tracker, the queue and the starts
	// of runs queued but not yet handled by the worker, oldest first.
	capMu     sync.Mutex
	accepting bool
	tracker   *vad.Tracker
	queue     chan vad.Closed
	pending   []float64
	pushWall  time.Time // when Push last ran

	mu      sync.Mutex
	state   SessionState
	machine *turn.Machine

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, st *store.Store, pub Publisher, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tracker, err := vad.NewTracker(cfg.vadConfig(), cfg.HangoverFrames, int(cfg.IgnoreShorter/time.Millisecond))
	if err != nil {
		return nil, err
	}
	policy := speaker.DefaultPolicy()
	policy.MinConfidence = cfg.MinConfidence
	cls, err := speaker.NewClassifier(cfg.SampleRate, cfg.ChildThreshold, policy)
	if err != nil {
		return nil, err
	}
	m, err := turn.New(turn.StreamingPolicy(cfg.Window.Seconds()))
	if err != nil {
		return nil, err
	}
	d := &Detector{
		cfg:        cfg,
		store:      st,
		pub:        pub,
		classifier: cls,
		now:        time.Now,
		log:        logrus.WithField("component", "stream"),
		tracker:    tracker,
		machine:    m,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

func (d *Detector) Config() Config { return d.cfg }

// Start opens a session. When one is already open its id is returned.
func (d *Detector) Start(ctx context.Context) (string, error) {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	d.mu.Lock()
	if d.state.Listening {
		id := d.state.SessionID
		d.mu.Unlock()
		return id, nil
	}
	id := uuid.NewString()[:8]
	now := d.now()
	d.state = SessionState{Listening: true, SessionID: id, StartedAt: now}
	d.machine.Reset()
	d.mu.Unlock()

	if err := d.store.CreateSession(&types.Session{ID: id, StartedAt: now.UTC()}); err != nil {
		d.mu.Lock()
		d.state = SessionState{}
		d.mu.Unlock()
		return "", err
	}

	queue := make(chan vad.Closed, d.cfg.QueueSize)
	d.capMu.Lock()
	d.tracker.Reset()
	d.pushWall = now
	d.pending = d.pending[:0]
	d.queue = queue
	d.accepting = true
	d.capMu.Unlock()

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.wg.Add(2)
	go d.work(id, queue)
	go d.heartbeat(sessCtx, id)

	metricSessionsActive.Set(1)
	d.log.WithField("session_id", id).Info("session started")
	return id, nil
}

// Push feeds captured samples. It never blocks on classification: closed runs
// are queued and dropped when the queue is full.
func (d *Detector) Push(samples []float32) error {
	d.capMu.Lock()
	defer d.capMu.Unlock()
	if !d.accepting {
		return ErrNotListening
	}
	closed := d.tracker.Push(samples)
	d.pushWall = d.now()
	for _, c := range closed {
		select {
		case d.queue <- c:
			d.pending = append(d.pending, c.Segment.Start)
		default:
			metricQueueDropped.Inc()
			d.log.WithFields(logrus.Fields{
				"start": c.Segment.Start,
				"end":   c.Segment.End,
			}).Warn("classification queue full, segment dropped")
		}
	}
	return nil
}

// Stop discards the open run, drains queued segments and closes the session.
func (d *Detector) Stop() (types.Stats, error) {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	d.capMu.Lock()
	if !d.accepting {
		d.capMu.Unlock()
		return types.Stats{}, ErrNotListening
	}
	d.accepting = false
	d.tracker.Discard()
	close(d.queue)
	d.capMu.Unlock()

	d.cancel()
	d.wg.Wait()

	now := d.now()
	d.mu.Lock()
	id := d.state.SessionID
	stats := d.state.stats(now)
	d.state = SessionState{}
	d.machine.Reset()
	d.mu.Unlock()

	if err := d.store.FinishSession(id, now, stats); err != nil {
		d.log.WithError(err).Warn("finish session")
	}
	metricSessionsActive.Set(0)
	d.log.WithFields(logrus.Fields{
		"session_id": id,
		"moments":    stats.Moments,
		"duration_s": stats.DurationS,
	}).Info("session stopped")
	return stats, nil
}

// Reset zeroes the counters and the event log, keeping the session open.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Stats = types.Stats{}
	if d.state.Listening {
		d.state.StartedAt = d.now()
		d.store.ClearEvents(d.state.SessionID)
	} else {
		d.state.StartedAt = time.Time{}
	}
}

func (d *Detector) Snapshot() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Status{Listening: d.state.Listening, CurrentPitch: d.state.CurrentPitch}
	if d.state.CurrentSpeaker != "" {
		spk := d.state.CurrentSpeaker
		s.CurrentSpeaker = &spk
	}
	if !d.state.LastSpeech.IsZero() {
		since := round(d.now().Sub(d.state.LastSpeech).Seconds(), 1)
		s.SecondsSinceLastSpeech = &since
	}
	return s
}

// recentEvents is how many log entries Session returns.
const recentEvents = 50

func (d *Detector) Session() SessionView {
	now := d.now()
	d.mu.Lock()
	st := d.state
	stats := d.state.stats(now)
	d.mu.Unlock()

	v := SessionView{
		SessionID:       st.SessionID,
		DurationMinutes: round(st.elapsed(now)/60, 1),
		Moments:         stats.Moments,
		ChildSpeech:     stats.ChildSpeech,
		AdultSpeech:     stats.AdultSpeech,
		MomentsPerHour:  stats.MomentsPerHour,
		Events:          []types.Event{},
	}
	if !st.StartedAt.IsZero() {
		at := st.StartedAt.UTC()
		v.StartedAt = &at
	}
	if st.SessionID != "" {
		v.Events = d.store.RecentEvents(st.SessionID, recentEvents)
	}
	return v
}

func (d *Detector) heartbeat(ctx context.Context, id string) {
	defer d.wg.Done()
	t := time.NewTicker(d.cfg.Heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.tick(id)
		}
	}
}

func (d *Detector) tick(id string) {
	now := d.now()
	audioNow, starts := d.captureClock(now)

	d.mu.Lock()
	if !d.replyPending(starts) {
		for _, ev := range d.machine.Expire(audioNow) {
			d.recordLocked(now, ev, nil)
		}
	}
	msg := statusMsg{
		Listening:       d.state.Listening,
		Moments:         d.state.Stats.Moments,
		ChildSpeech:     d.state.Stats.ChildSpeech,
		AdultSpeech:     d.state.Stats.AdultSpeech,
		DurationSeconds: round(d.state.elapsed(now), 1),
		CurrentSpeaker:  d.state.CurrentSpeaker,
	}
	d.mu.Unlock()

	d.pub.Publish(id, "status", msg)
}

// captureClock reads the stream time for window expiry and the starts of the
// runs the worker has not handled yet, open run last. Once capture has been
// stalled for more than a heartbeat the stream time follows the wall clock.
func (d *Detector) captureClock(now time.Time) (audioNow float64, starts []float64) {
	d.capMu.Lock()
	defer d.capMu.Unlock()
	audioNow = d.tracker.Elapsed()
	if stalled := now.Sub(d.pushWall) - d.cfg.Heartbeat; stalled > 0 {
		audioNow += stalled.Seconds()
	}
	starts = append(starts, d.pending...)
	if start, ok := d.tracker.OpenStart(); ok {
		starts = append(starts, start)
	}
	return audioNow, starts
}

// replyPending reports whether one of the unhandled runs began inside the
// window of the pending serve and may still answer it. Caller holds d.mu.
func (d *Detector) replyPending(starts []float64) bool {
	serveEnd, ok := d.machine.ServeEnd()
	if !ok {
		return false
	}
	window := d.machine.Policy().Window
	for _, s := range starts {
		if s >= serveEnd && s-serveEnd <= window {
			return true
		}
	}
	return false
}

// handled drops the oldest pending start once the worker is done with it.
func (d *Detector) handled() {
	d.capMu.Lock()
	if len(d.pending) > 0 {
		d.pending = d.pending[1:]
	}
	d.capMu.Unlock()
}
