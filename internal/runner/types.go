package runner

import (
	"encoding/json"
	"time"

	"flowbench/internal/monitor"
)

type Config struct {
	URL            string        `json:"url"`
	Topic          string        `json:"topic"`
	TotalRequests  int           `json:"total_requests"`
	MaxConcurrency int           `json:"max_concurrency"`
	Timeout        time.Duration `json:"timeout"`
}

// FailureKind classifies a per-attempt failure. Failures are isolated: they
// are counted, never retried, and never abort sibling attempts.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureTimeout   FailureKind = "timeout"
	FailureBadStatus FailureKind = "bad_status"
	FailureBadBody   FailureKind = "malformed_body"
)

// AttemptResult is the outcome of a single dispatched attempt, timed from
// send to full response receipt. Immutable once recorded.
type AttemptResult struct {
	RequestID string  `json:"request_id"`
	Attempt   int     `json:"attempt"`
	Success   bool    `json:"success"`
	LatencyMs float64 `json:"latency_ms"`
	Status    int     `json:"status,omitempty"`

	// Per-phase durations (ms) reported by the service, present on
	// success when the response carries task_times.
	TaskTimes map[string]int64 `json:"task_times,omitempty"`

	// Full response body, opaque to the driver, forwarded into the
	// persisted artifact.
	Payload json.RawMessage `json:"payload,omitempty"`

	FailureKind FailureKind `json:"failure_kind,omitempty"`
	FailureMsg  string      `json:"failure_message,omitempty"`
}

// BenchmarkRun is the sealed raw result set of one dispatch. No ordering is
// guaranteed between result position and issuance order; aggregation treats
// Results as a multiset.
type BenchmarkRun struct {
	ServiceURL      string                   `json:"service_url"`
	Topic           string                   `json:"topic"`
	TotalRequests   int                      `json:"total_requests"`
	MaxConcurrency  int                      `json:"max_concurrency"`
	Results         []AttemptResult          `json:"results"`
	ResourceSamples []monitor.ResourceSample `json:"resource_samples"`
	WallTimeSeconds float64                  `json:"wall_time_seconds"`
}

// SuccessfulLatencies returns the latency of every successful attempt, in
// result order.
func (r *BenchmarkRun) SuccessfulLatencies() []float64 {
	out := make([]float64, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Success {
			out = append(out, res.LatencyMs)
		}
	}
	return out
}

// PhaseDurations groups the per-phase durations of every successful attempt
// by phase name. Phases absent from an individual result simply contribute
// nothing for that attempt.
func (r *BenchmarkRun) PhaseDurations() map[string][]float64 {
	out := make(map[string][]float64)
	for _, res := range r.Results {
		if !res.Success {
			continue
		}
		for phase, ms := range res.TaskTimes {
			out[phase] = append(out[phase], float64(ms))
		}
	}
	return out
}
