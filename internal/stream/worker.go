package stream

import (
	"time"

	"github.com/sirupsen/logrus"

	"serveturn/detector/internal/turn"
	"serveturn/detector/internal/types"
	"serveturn/detector/internal/vad"
)

type feedMsg struct {
	typ     string
	payload any
}

// work classifies closed runs until the queue is closed by Stop.
func (d *Detector) work(id string, queue <-chan vad.Closed) {
	defer d.wg.Done()
	for c := range queue {
		d.handle(id, c)
		d.handled()
	}
}

func (d *Detector) handle(id string, c vad.Closed) {
	var out []feedMsg
	if !c.Short {
		out = d.classify(c.Segment)
	}

	d.mu.Lock()
	d.state.CurrentSpeaker = ""
	d.state.CurrentPitch = nil
	d.mu.Unlock()
	out = append(out, feedMsg{typ: "silence", payload: struct{}{}})

	for _, m := range out {
		d.pub.Publish(id, m.typ, m.payload)
	}
}

func (d *Detector) classify(seg types.SpeechSegment) []feedMsg {
	res := d.classifier.SegmentWithConfidence(seg.Samples)
	dur := time.Duration(seg.Duration() * float64(time.Second))
	spk := res.Speaker
	if spk == types.Child && dur < d.cfg.MinChildSpeech {
		spk = types.Unknown
	}
	pitch := pitchHz(res.Pitch, res.HasPitch)
	log := d.log.WithFields(logrus.Fields{
		"start":      seg.Start,
		"end":        seg.End,
		"pitch":      res.Pitch,
		"confidence": res.Confidence,
	})

	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	if spk == types.Unknown {
		metricSegments.WithLabelValues("uncertain").Inc()
		log.Debug("uncertain sound")
		d.appendLocked(now, types.Event{Type: "sound", Pitch: pitch, Note: "uncertain"})
		return nil
	}
	metricSegments.WithLabelValues(string(spk)).Inc()
	log.WithField("speaker", spk).Debug("speech")

	d.state.CurrentSpeaker = spk
	d.state.CurrentPitch = pitch
	d.state.LastSpeech = now
	if spk == types.Child {
		d.state.Stats.ChildSpeech++
	} else {
		d.state.Stats.AdultSpeech++
	}

	evs, err := d.machine.Observe(turn.Observation{
		Start:    seg.Start,
		End:      seg.End,
		Speaker:  spk,
		Pitch:    res.Pitch,
		HasPitch: res.HasPitch,
	})
	if err != nil {
		log.WithError(err).Error("segment rejected")
		return nil
	}

	var out []feedMsg
	answered := false
	for _, ev := range evs {
		if ev.Type == turn.Moment {
			answered = true
		}
		d.recordLocked(now, ev, &out)
	}
	if spk == types.Adult && !answered {
		d.appendLocked(now, types.Event{Type: "adult", Pitch: pitch})
	}
	out = append(out, feedMsg{typ: "speech", payload: speechMsg{
		Speaker:    spk,
		Pitch:      pitch,
		DurationMs: int(dur / time.Millisecond),
		Time:       round(d.state.elapsed(now), 1),
	}})
	return out
}

// recordLocked applies a machine event to the counters and the log. Feed
// messages are collected in out when it is non-nil.
func (d *Detector) recordLocked(now time.Time, ev turn.Event, out *[]feedMsg) {
	switch ev.Type {
	case turn.ChildSpeech:
		d.appendLocked(now, types.Event{Type: "child", Pitch: pitchHz(ev.Pitch, ev.HasPitch)})
	case turn.Moment:
		d.state.Stats.Moments++
		d.state.Stats.ResponseTimes = append(d.state.Stats.ResponseTimes, ev.Latency)
		metricMoments.Inc()
		metricResponseTime.Observe(ev.Latency)
		rt := round(ev.Latency, 2)
		d.appendLocked(now, types.Event{Type: "moment", ResponseTime: &rt})
		if out != nil {
			*out = append(*out, feedMsg{typ: "moment", payload: momentMsg{
				Moments:      d.state.Stats.Moments,
				ResponseTime: rt,
				Time:         round(d.state.elapsed(now), 1),
			}})
		}
		d.log.WithFields(logrus.Fields{
			"session_id":    d.state.SessionID,
			"response_time": rt,
		}).Info("conversation moment")
	case turn.WindowClosed:
		d.state.Stats.WindowsClosed++
		metricWindowsClosed.Inc()
		d.appendLocked(now, types.Event{Type: "window_closed", Note: "ready_for_next"})
	}
}

func (d *Detector) appendLocked(now time.Time, ev types.Event) {
	ev.Time = round(d.state.elapsed(now), 1)
	d.store.AppendEvent(d.state.SessionID, ev)
}
