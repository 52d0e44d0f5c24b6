package storage

import (
	"time"

	"flowbench/internal/compare"
)

// RunDigest is the stored summary of one service's run. Full raw data lives
// in the JSON artifact; the history keeps enough to eyeball trends.
type RunDigest struct {
	URL           string  `json:"url"`
	SuccessCount  int     `json:"success"`
	ErrorCount    int     `json:"errors"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms"`
	ThroughputRPS float64 `json:"throughput_rps"`
}

// ComparisonRecord is one past comparison as kept in the history store.
type ComparisonRecord struct {
	ID             string             `json:"id"`
	Timestamp      time.Time          `json:"timestamp"`
	Topic          string             `json:"topic"`
	TotalRequests  int                `json:"total_requests"`
	MaxConcurrency int                `json:"max_concurrency"`
	ServiceA       RunDigest          `json:"service_a"`
	ServiceB       RunDigest          `json:"service_b"`
	Ratios         map[string]float64 `json:"ratios"`
}

// NewRecord digests a finished report into a history record.
func NewRecord(id string, rep *compare.Report) ComparisonRecord {
	digest := func(res compare.ServiceResult) RunDigest {
		return RunDigest{
			URL:           res.Stats.ServiceURL,
			SuccessCount:  res.Stats.SuccessCount,
			ErrorCount:    res.Stats.ErrorCount,
			AvgLatencyMs:  res.Stats.AvgLatencyMs,
			P95LatencyMs:  res.Stats.P95LatencyMs,
			ThroughputRPS: res.Stats.ThroughputRPS,
		}
	}
	return ComparisonRecord{
		ID:             id,
		Timestamp:      rep.Timestamp,
		Topic:          rep.Config.Topic,
		TotalRequests:  rep.Config.TotalRequests,
		MaxConcurrency: rep.Config.MaxConcurrency,
		ServiceA:       digest(rep.A),
		ServiceB:       digest(rep.B),
		Ratios:         rep.Ratios,
	}
}
