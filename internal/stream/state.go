package stream

import (
	"math"
	"time"

	"serveturn/detector/internal/types"
)

// SessionState is the live session, guarded by Detector.mu.
type SessionState struct {
	Listening      bool
	SessionID      string
	StartedAt      time.Time
	CurrentSpeaker types.Speaker
	CurrentPitch   *int
	LastSpeech     time.Time
	Stats          types.Stats
}

// Status is the lightweight snapshot polled by clients.
type Status struct {
	Listening              bool           `json:"listening"`
	CurrentSpeaker         *types.Speaker `json:"current_speaker"`
	CurrentPitch           *int           `json:"current_pitch"`
	SecondsSinceLastSpeech *float64       `json:"seconds_since_last_speech"`
}

// SessionView is the current session with its most recent events.
type SessionView struct {
	SessionID       string        `json:"session_id"`
	StartedAt       *time.Time    `json:"started_at"`
	DurationMinutes float64       `json:"duration_minutes"`
	Moments         int           `json:"moments"`
	ChildSpeech     int           `json:"child_speech"`
	AdultSpeech     int           `json:"adult_speech"`
	MomentsPerHour  float64       `json:"moments_per_hour"`
	Events          []types.Event `json:"events"`
}

// feed payloads
type speechMsg struct {
	Speaker    types.Speaker `json:"speaker"`
	Pitch      *int          `json:"pitch"`
	DurationMs int           `json:"duration_ms"`
	Time       float64       `json:"time"`
}

type momentMsg struct {
	Moments      int     `json:"moments"`
	ResponseTime float64 `json:"response_time"`
	Time         float64 `json:"time"`
}

type statusMsg struct {
	Listening       bool          `json:"listening"`
	Moments         int           `json:"moments"`
	ChildSpeech     int           `json:"child_speech"`
	AdultSpeech     int           `json:"adult_speech"`
	DurationSeconds float64       `json:"duration_seconds"`
	CurrentSpeaker  types.Speaker `json:"current_speaker,omitempty"`
}

func (s *SessionState) elapsed(now time.Time) float64 {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt).Seconds()
}

// stats finalises the counters at now. Moments per hour is only reported
// once the session is longer than 36 seconds.
func (s *SessionState) stats(now time.Time) types.Stats {
	st := s.Stats
	st.ResponseTimes = append([]float64(nil), s.Stats.ResponseTimes...)
	if st.ResponseTimes == nil {
		st.ResponseTimes = []float64{}
	}
	st.DurationS = round(s.elapsed(now), 1)
	if hours := s.elapsed(now) / 3600; hours > 0.01 {
		st.MomentsPerHour = round(float64(st.Moments)/hours, 1)
	}
	return st
}

func pitchHz(f0 float64, ok bool) *int {
	if !ok {
		return nil
	}
	p := int(f0)
	return &p
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
