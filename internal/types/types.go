package types

import (
	"errors"
	"fmt"
	"time"
)

// Speaker is the label assigned to a speech segment.
type Speaker string

const (
	Adult   Speaker = "adult"
	Child   Speaker = "child"
	Unknown Speaker = "unknown"
)

// SpeechSegment is a contiguous run of voiced audio. Times are seconds from the
// start of the stream.
type SpeechSegment struct {
	Start   float64
	End     float64
	Samples []float32
}

func (s SpeechSegment) Duration() float64 { return s.End - s.Start }

// ErrConfig matches every *ConfigError via errors.Is.
var ErrConfig = errors.New("invalid configuration")

// ConfigError reports a rejected configuration value.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

func NewConfigError(field string, value any, reason string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}

// Event is one entry of a live session's event feed. Time is seconds since the
// session started; optional fields are omitted when unset.
type Event struct {
	Time         float64  `json:"time"`
	Type         string   `json:"type"`
	Speaker      Speaker  `json:"speaker,omitempty"`
	Pitch        *int     `json:"pitch,omitempty"`
	ResponseTime *float64 `json:"response_time,omitempty"`
	Note         string   `json:"note,omitempty"`
}

// Stats are the running counters of a live session.
type Stats struct {
	ChildSpeech    int       `json:"child_speech"`
	AdultSpeech    int       `json:"adult_speech"`
	Moments        int       `json:"moments"`
	WindowsClosed  int       `json:"windows_closed"`
	ResponseTimes  []float64 `json:"response_times"`
	DurationS      float64   `json:"duration_s"`
	MomentsPerHour float64   `json:"moments_per_hour"`
}

// Session is a live listening session as kept in memory by the server.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Stats     *Stats     `json:"stats,omitempty"`
}
