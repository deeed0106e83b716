// Package health reports readiness over HTTP and serves the standard gRPC
// health service.
package health

import (
	"context"
	"fmt"
	"time"
)

type CheckResult struct {
	Name      string  `json:"name"`
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%.1fms)", mark, c.Name, c.LatencyMs)
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// Check is one named readiness probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// CheckAll runs the checks in order and returns the combined status.
func CheckAll(ctx context.Context, checks ...Check) HealthStatus {
	out := HealthStatus{OK: true, Checks: make([]CheckResult, 0, len(checks))}
	for _, c := range checks {
		start := time.Now()
		res := CheckResult{Name: c.Name, OK: true}
		if err := c.Run(ctx); err != nil {
			res.OK = false
			res.Error = err.Error()
			out.OK = false
		}
		res.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
		out.Checks = append(out.Checks, res)
	}
	out.CheckedAt = time.Now().UTC()
	return out
}
