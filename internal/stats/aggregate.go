package stats

import (
	"math"
	"sort"

	"flowbench/internal/monitor"
)

// RunStatistics is the read-only summary of one sealed benchmark run.
// Field names mirror the persisted artifact schema.
type RunStatistics struct {
	ServiceURL      string  `json:"service_url"`
	TotalRequests   int     `json:"total_requests"`
	SuccessCount    int     `json:"successful_requests"`
	ErrorCount      int     `json:"errors"`
	ErrorRate       float64 `json:"error_rate"`
	WallTimeSeconds float64 `json:"total_time_seconds"`
	ThroughputRPS   float64 `json:"throughput_rps"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P50LatencyMs float64 `json:"p50_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`
	MinLatencyMs float64 `json:"min_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`

	PhaseStats   map[string]PhaseSummary `json:"task_statistics"`
	RawLatencies []float64               `json:"raw_latencies"`
}

// PhaseSummary summarizes one named sub-phase reported by the target
// service inside its response payload.
type PhaseSummary struct {
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
}

// ResourceSummary reduces a resource-sample sequence to its headline numbers.
type ResourceSummary struct {
	Samples       int     `json:"samples"`
	AvgCPUPercent float64 `json:"avg_cpu_percent"`
	MaxCPUPercent float64 `json:"max_cpu_percent"`
	AvgMemoryMB   float64 `json:"avg_memory_mb"`
	MaxMemoryMB   float64 `json:"max_memory_mb"`
	AvgThreads    float64 `json:"avg_threads"`
}

// AggregateRun reduces the successful latencies and per-phase durations of a
// sealed run into a RunStatistics. Pure: identical input, identical output.
// Only successful latencies contribute; an empty success set yields zeroed
// percentile fields.
func AggregateRun(serviceURL string, totalRequests int, latencies []float64, phases map[string][]float64, wallSeconds float64) RunStatistics {
	st := RunStatistics{
		ServiceURL:      serviceURL,
		TotalRequests:   totalRequests,
		SuccessCount:    len(latencies),
		ErrorCount:      totalRequests - len(latencies),
		WallTimeSeconds: wallSeconds,
		PhaseStats:      make(map[string]PhaseSummary, len(phases)),
		RawLatencies:    append([]float64(nil), latencies...),
	}

	if totalRequests > 0 {
		st.ErrorRate = float64(st.ErrorCount) / float64(totalRequests)
	}
	if wallSeconds > 0 {
		st.ThroughputRPS = float64(st.SuccessCount) / wallSeconds
	}

	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)

	if len(sorted) > 0 {
		st.AvgLatencyMs = mean(sorted)
		st.P50LatencyMs = median(sorted)
		st.P95LatencyMs = percentileOrMax(sorted, 0.95, 20)
		st.P99LatencyMs = percentileOrMax(sorted, 0.99, 100)
		st.MinLatencyMs = sorted[0]
		st.MaxLatencyMs = sorted[len(sorted)-1]
	}

	for name, durations := range phases {
		ps := append([]float64(nil), durations...)
		sort.Float64s(ps)
		if len(ps) == 0 {
			continue
		}
		st.PhaseStats[name] = PhaseSummary{
			AvgMs: mean(ps),
			P50Ms: median(ps),
			P95Ms: percentileOrMax(ps, 0.95, 20),
		}
	}

	return st
}

// AggregateResources summarizes the samples collected over one run. An empty
// sample set yields a zeroed summary, which the report renders as "no data".
func AggregateResources(samples []monitor.ResourceSample) ResourceSummary {
	rs := ResourceSummary{Samples: len(samples)}
	if len(samples) == 0 {
		return rs
	}

	var cpuSum, memSum, thrSum float64
	for _, s := range samples {
		cpuSum += s.CPUPercent
		memSum += s.MemoryMB
		thrSum += float64(s.Threads)
		rs.MaxCPUPercent = math.Max(rs.MaxCPUPercent, s.CPUPercent)
		rs.MaxMemoryMB = math.Max(rs.MaxMemoryMB, s.MemoryMB)
	}
	n := float64(len(samples))
	rs.AvgCPUPercent = cpuSum / n
	rs.AvgMemoryMB = memSum / n
	rs.AvgThreads = thrSum / n
	return rs
}

// percentileOrMax returns the value at index ceil(q*N)-1 of a sorted
// ascending slice. For N <= minSamples it falls back to the maximum: too few
// samples for a meaningful tail estimate. The thresholds (20 for p95, 100
// for p99) are a deliberate small-sample approximation kept for
// comparability with previously recorded runs.
func percentileOrMax(sorted []float64, q float64, minSamples int) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n <= minSamples {
		return sorted[n-1]
	}
	idx := int(math.Ceil(q*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// median of a sorted ascending slice; averages the two middle values for
// even lengths.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
