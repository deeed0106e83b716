package turn

import "serveturn/detector/internal/types"

type Mode int

const (
	// Batch reports serve, return and missed_opportunity, with a dead zone
	// between the response and missed thresholds.
	Batch Mode = iota
	// Streaming reports child_speech, moment and window_closed inside a single
	// generous window.
	Streaming
)

func (m Mode) String() string {
	if m == Streaming {
		return "streaming"
	}
	return "batch"
}

// Policy parameterises the state machine. Durations are seconds.
type Policy struct {
	Mode              Mode
	ResponseThreshold float64
	MissedThreshold   float64
	Window            float64
}

func BatchPolicy(response, missed float64) Policy {
	return Policy{Mode: Batch, ResponseThreshold: response, MissedThreshold: missed}
}

func StreamingPolicy(window float64) Policy {
	return Policy{Mode: Streaming, Window: window}
}

func DefaultBatchPolicy() Policy     { return BatchPolicy(3, 5) }
func DefaultStreamingPolicy() Policy { return StreamingPolicy(15) }

func (p Policy) Validate() error {
	switch p.Mode {
	case Batch:
		if p.ResponseThreshold <= 0 {
			return types.NewConfigError("response_threshold", p.ResponseThreshold, "must be positive")
		}
		if p.MissedThreshold < p.ResponseThreshold {
			return types.NewConfigError("missed_threshold", p.MissedThreshold, "must not be below the response threshold")
		}
	case Streaming:
		if p.Window <= 0 {
			return types.NewConfigError("conversation_window", p.Window, "must be positive")
		}
	default:
		return types.NewConfigError("mode", int(p.Mode), "unknown policy mode")
	}
	return nil
}
