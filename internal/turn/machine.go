// Package turn turns an ordered stream of labelled speech segments into
// conversational turn events.
package turn

import (
	"errors"
	"fmt"

	"serveturn/detector/internal/types"
)

var ErrNonMonotonic = errors.New("segments out of order")

type EventType string

const (
	Serve        EventType = "serve"
	Return       EventType = "return"
	Missed       EventType = "missed_opportunity"
	ChildSpeech  EventType = "child_speech"
	Moment       EventType = "moment"
	WindowClosed EventType = "window_closed"
)

// Event is a turn-level event. Only the fields of its type are meaningful:
// serve/child_speech use Start, End, Pitch; return/moment add Latency;
// missed_opportunity/window_closed use Start (the end of the unanswered child
// segment) and SilenceDuration.
type Event struct {
	Type            EventType
	Start           float64
	End             float64
	Speaker         types.Speaker
	Latency         float64
	Pitch           float64
	HasPitch        bool
	SilenceDuration float64
}

// Observation is one labelled speech segment.
type Observation struct {
	Start    float64
	End      float64
	Speaker  types.Speaker
	Pitch    float64
	HasPitch bool
}

type State int

const (
	Idle State = iota
	Awaiting
)

func (s State) String() string {
	if s == Awaiting {
		return "awaiting_response"
	}
	return "idle"
}

// wait is a pending child serve. reported is set once the wait has been
// closed so a late timer tick cannot report it again.
type wait struct {
	serveEnd float64
	reported bool
}

// Machine is not safe for concurrent use; the streaming detector guards it
// with its session mutex.
type Machine struct {
	policy    Policy
	wait      *wait
	lastStart float64
	seen      bool
}

func New(p Policy) (*Machine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Machine{policy: p}, nil
}

func (m *Machine) Policy() Policy { return m.policy }

func (m *Machine) State() State {
	if m.awaiting() {
		return Awaiting
	}
	return Idle
}

// ServeEnd is the end time of the pending child segment, if any.
func (m *Machine) ServeEnd() (float64, bool) {
	if !m.awaiting() {
		return 0, false
	}
	return m.wait.serveEnd, true
}

func (m *Machine) Reset() {
	m.wait = nil
	m.lastStart = 0
	m.seen = false
}

func (m *Machine) awaiting() bool { return m.wait != nil && !m.wait.reported }

// Observe advances the machine by one segment. Segments must arrive in start
// order; a violation returns ErrNonMonotonic and leaves the state untouched.
func (m *Machine) Observe(o Observation) ([]Event, error) {
	if o.End < o.Start || (m.seen && o.Start < m.lastStart) {
		return nil, fmt.Errorf("%w: segment %.3f-%.3f after start %.3f", ErrNonMonotonic, o.Start, o.End, m.lastStart)
	}
	m.lastStart, m.seen = o.Start, true

	switch o.Speaker {
	case types.Child:
		return m.onChild(o), nil
	case types.Adult:
		return m.onAdult(o), nil
	}
	return nil, nil
}

func (m *Machine) onChild(o Observation) []Event {
	var out []Event
	if m.awaiting() {
		gap := o.Start - m.wait.serveEnd
		if m.expired(gap) {
			out = append(out, m.close(gap))
		}
	}
	typ := Serve
	if m.policy.Mode == Streaming {
		typ = ChildSpeech
	}
	out = append(out, Event{
		Type: typ, Start: o.Start, End: o.End, Speaker: types.Child,
		Pitch: o.Pitch, HasPitch: o.HasPitch,
	})
	m.wait = &wait{serveEnd: o.End}
	return out
}

func (m *Machine) onAdult(o Observation) []Event {
	if !m.awaiting() {
		return nil
	}
	latency := o.Start - m.wait.serveEnd

	if m.policy.Mode == Streaming {
		if latency <= m.policy.Window {
			m.wait.reported = true
			return []Event{m.answer(Moment, o, latency)}
		}
		return []Event{m.close(latency)}
	}

	switch {
	case latency <= m.policy.ResponseThreshold:
		m.wait.reported = true
		return []Event{m.answer(Return, o, latency)}
	case latency >= m.policy.MissedThreshold:
		return []Event{m.close(latency)}
	}
	// between the thresholds: no event, keep waiting
	return nil
}

// Expire closes the pending wait if it has run past its limit at time now.
func (m *Machine) Expire(now float64) []Event {
	if !m.awaiting() {
		return nil
	}
	elapsed := now - m.wait.serveEnd
	if !m.expired(elapsed) {
		return nil
	}
	return []Event{m.close(elapsed)}
}

func (m *Machine) expired(elapsed float64) bool {
	if m.policy.Mode == Streaming {
		return elapsed > m.policy.Window
	}
	return elapsed >= m.policy.MissedThreshold
}

func (m *Machine) answer(typ EventType, o Observation, latency float64) Event {
	return Event{
		Type: typ, Start: o.Start, End: o.End, Speaker: types.Adult,
		Latency: latency, Pitch: o.Pitch, HasPitch: o.HasPitch,
	}
}

func (m *Machine) close(silence float64) Event {
	typ := Missed
	if m.policy.Mode == Streaming {
		typ = WindowClosed
	}
	ev := Event{Type: typ, Start: m.wait.serveEnd, SilenceDuration: silence}
	m.wait.reported = true
	return ev
}
