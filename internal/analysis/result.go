package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"serveturn/detector/internal/turn"
	"serveturn/detector/internal/types"
)

var ErrUnknownEvent = errors.New("unknown event type")

// Event is a rounded batch event. Each type serialises only its own fields.
type Event struct {
	Type            turn.EventType
	StartTime       float64
	EndTime         float64
	Speaker         types.Speaker
	ResponseLatency float64
	PitchHz         *float64
	SilenceDuration float64
}

type Summary struct {
	TotalServes            int      `json:"total_serves" yaml:"total_serves"`
	TotalReturns           int      `json:"total_returns" yaml:"total_returns"`
	MissedOpportunities    int      `json:"missed_opportunities" yaml:"missed_opportunities"`
	SuccessfulReturnRate   float64  `json:"successful_return_rate" yaml:"successful_return_rate"`
	AverageResponseLatency *float64 `json:"average_response_latency" yaml:"average_response_latency"`
}

type Result struct {
	Events  []Event `json:"events" yaml:"events"`
	Summary Summary `json:"summary" yaml:"summary"`
}

type serveWire struct {
	Type      turn.EventType `json:"type" yaml:"type"`
	StartTime float64        `json:"start_time" yaml:"start_time"`
	EndTime   float64        `json:"end_time" yaml:"end_time"`
	Speaker   types.Speaker  `json:"speaker" yaml:"speaker"`
	PitchHz   *float64       `json:"pitch_hz" yaml:"pitch_hz"`
}

type returnWire struct {
	Type            turn.EventType `json:"type" yaml:"type"`
	StartTime       float64        `json:"start_time" yaml:"start_time"`
	EndTime         float64        `json:"end_time" yaml:"end_time"`
	Speaker         types.Speaker  `json:"speaker" yaml:"speaker"`
	ResponseLatency float64        `json:"response_latency" yaml:"response_latency"`
	PitchHz         *float64       `json:"pitch_hz" yaml:"pitch_hz"`
}

type missedWire struct {
	Type            turn.EventType `json:"type" yaml:"type"`
	StartTime       float64        `json:"start_time" yaml:"start_time"`
	SilenceDuration float64        `json:"silence_duration" yaml:"silence_duration"`
}

// anyWire accepts every variant on decode.
type anyWire struct {
	Type            turn.EventType `json:"type"`
	StartTime       float64        `json:"start_time"`
	EndTime         float64        `json:"end_time"`
	Speaker         types.Speaker  `json:"speaker"`
	ResponseLatency float64        `json:"response_latency"`
	PitchHz         *float64       `json:"pitch_hz"`
	SilenceDuration float64        `json:"silence_duration"`
}

func (e Event) wire() (any, error) {
	switch e.Type {
	case turn.Serve:
		return serveWire{e.Type, e.StartTime, e.EndTime, e.Speaker, e.PitchHz}, nil
	case turn.Return:
		return returnWire{e.Type, e.StartTime, e.EndTime, e.Speaker, e.ResponseLatency, e.PitchHz}, nil
	case turn.Missed:
		return missedWire{e.Type, e.StartTime, e.SilenceDuration}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
}

func (e Event) MarshalJSON() ([]byte, error) {
	w, err := e.wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (e Event) MarshalYAML() (interface{}, error) { return e.wire() }

func (e *Event) UnmarshalJSON(b []byte) error {
	var w anyWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Type {
	case turn.Serve, turn.Return, turn.Missed:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, w.Type)
	}
	*e = Event{
		Type:            w.Type,
		StartTime:       w.StartTime,
		EndTime:         w.EndTime,
		Speaker:         w.Speaker,
		ResponseLatency: w.ResponseLatency,
		PitchHz:         w.PitchHz,
		SilenceDuration: w.SilenceDuration,
	}
	return nil
}

func (r Result) JSON() ([]byte, error) {
	if r.Events == nil {
		r.Events = []Event{}
	}
	return json.MarshalIndent(r, "", "  ")
}

func (r Result) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

// ParseResult decodes the JSON produced by Result.JSON.
func ParseResult(b []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(b, &r); err != nil {
		return Result{}, fmt.Errorf("parse result: %w", err)
	}
	return r, nil
}

// Summarise derives the summary from a rounded event list.
func Summarise(events []Event) Summary {
	var s Summary
	var latency float64
	for _, e := range events {
		switch e.Type {
		case turn.Serve:
			s.TotalServes++
		case turn.Return:
			s.TotalReturns++
			latency += e.ResponseLatency
		case turn.Missed:
			s.MissedOpportunities++
		}
	}
	if s.TotalServes > 0 {
		s.SuccessfulReturnRate = round(float64(s.TotalReturns)/float64(s.TotalServes), 2)
	}
	if s.TotalReturns > 0 {
		avg := round(latency/float64(s.TotalReturns), 2)
		s.AverageResponseLatency = &avg
	}
	return s
}

// fromTurn rounds a machine event for output: times, latency and silence to
// hundredths, pitch to tenths.
func fromTurn(ev turn.Event) Event {
	out := Event{
		Type:            ev.Type,
		StartTime:       round(ev.Start, 2),
		EndTime:         round(ev.End, 2),
		Speaker:         ev.Speaker,
		ResponseLatency: round(ev.Latency, 2),
		SilenceDuration: round(ev.SilenceDuration, 2),
	}
	if ev.HasPitch {
		p := round(ev.Pitch, 1)
		out.PitchHz = &p
	}
	return out
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
