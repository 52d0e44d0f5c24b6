// Package report renders a finished comparison for human eyes.
package report

import (
	"fmt"
	"sort"
	"strings"

	"flowbench/internal/compare"
	"flowbench/internal/tui/styles"
)

const rule = "======================================================================"

// Render builds the console comparison table: Metric | A | B | B/A, followed
// by resource usage and the per-phase breakdown.
func Render(rep *compare.Report) string {
	var b strings.Builder

	a, bb := rep.A, rep.B

	b.WriteString("\n" + rule + "\n")
	b.WriteString(styles.Title.Render("BENCHMARK RESULTS") + "\n")
	b.WriteString(rule + "\n\n")

	b.WriteString(fmt.Sprintf("%-25s %-15s %-15s %-15s\n",
		"Metric", a.Name, bb.Name, "B/A"))
	b.WriteString(strings.Repeat("-", 70) + "\n")

	row := func(label string, va, vb float64, ratioKey, format string) {
		ratioStr := ""
		if r, ok := rep.Ratios[ratioKey]; ok {
			ratioStr = fmt.Sprintf("%.2fx", r)
		}
		b.WriteString(fmt.Sprintf("%-25s "+format+" "+format+" %-15s\n",
			label, va, vb, ratioStr))
	}

	row("Avg Latency (ms)", a.Stats.AvgLatencyMs, bb.Stats.AvgLatencyMs, "avg_latency_ms", "%-15.0f")
	row("P50 Latency (ms)", a.Stats.P50LatencyMs, bb.Stats.P50LatencyMs, "p50_latency_ms", "%-15.0f")
	row("P95 Latency (ms)", a.Stats.P95LatencyMs, bb.Stats.P95LatencyMs, "p95_latency_ms", "%-15.0f")
	row("P99 Latency (ms)", a.Stats.P99LatencyMs, bb.Stats.P99LatencyMs, "p99_latency_ms", "%-15.0f")
	row("Max Latency (ms)", a.Stats.MaxLatencyMs, bb.Stats.MaxLatencyMs, "max_latency_ms", "%-15.0f")
	row("Min Latency (ms)", a.Stats.MinLatencyMs, bb.Stats.MinLatencyMs, "min_latency_ms", "%-15.0f")
	row("Total Time (s)", a.Stats.WallTimeSeconds, bb.Stats.WallTimeSeconds, "", "%-15.1f")
	row("Throughput (req/s)", a.Stats.ThroughputRPS, bb.Stats.ThroughputRPS, "throughput_rps", "%-15.1f")
	b.WriteString(fmt.Sprintf("%-25s %-15d %-15d\n",
		"Successful Requests", a.Stats.SuccessCount, bb.Stats.SuccessCount))
	row("Error Rate (%)", a.Stats.ErrorRate*100, bb.Stats.ErrorRate*100, "error_rate", "%-15.1f")

	b.WriteString(renderResources(rep))
	b.WriteString(renderPhases(rep))

	return b.String()
}

func renderResources(rep *compare.Report) string {
	a, bb := rep.A.Resources, rep.B.Resources

	var b strings.Builder
	b.WriteString("\n" + styles.Title.Render("Resource Usage") + "\n")
	b.WriteString(strings.Repeat("-", 50) + "\n")

	if !rep.Config.MonitorResources {
		b.WriteString(styles.Subtle.Render("Resource monitoring disabled.") + "\n")
		return b.String()
	}
	if a.Samples == 0 && bb.Samples == 0 {
		b.WriteString(styles.Warn.Render("Monitoring was enabled but no samples were collected.") + "\n")
		b.WriteString(styles.Subtle.Render("Check that the services are running and the process-name filters match.") + "\n")
		return b.String()
	}

	row := func(label string, va, vb float64, ratioKey string) {
		ratioStr := ""
		if r, ok := rep.Ratios[ratioKey]; ok {
			ratioStr = fmt.Sprintf("%.2fx", r)
		}
		b.WriteString(fmt.Sprintf("%-25s %-15.1f %-15.1f %-15s\n", label, va, vb, ratioStr))
	}
	row("Avg CPU (%)", a.AvgCPUPercent, bb.AvgCPUPercent, "avg_cpu_percent")
	row("Avg Memory (MB)", a.AvgMemoryMB, bb.AvgMemoryMB, "avg_memory_mb")
	row("Max Memory (MB)", a.MaxMemoryMB, bb.MaxMemoryMB, "max_memory_mb")
	b.WriteString(fmt.Sprintf("%-25s %-15.1f %-15.1f\n", "Avg Threads", a.AvgThreads, bb.AvgThreads))
	b.WriteString(fmt.Sprintf("%-25s %-15d %-15d\n", "Samples", a.Samples, bb.Samples))

	return b.String()
}

func renderPhases(rep *compare.Report) string {
	var b strings.Builder
	b.WriteString("\n" + styles.Title.Render("Phase Performance Breakdown (avg ms)") + "\n")
	b.WriteString(strings.Repeat("-", 50) + "\n")

	// Union of both runs' phase names; ratio only where both observed it.
	names := map[string]bool{}
	for n := range rep.A.Stats.PhaseStats {
		names[n] = true
	}
	for n := range rep.B.Stats.PhaseStats {
		names[n] = true
	}
	if len(names) == 0 {
		b.WriteString(styles.Subtle.Render("No per-phase timings reported.") + "\n")
		return b.String()
	}

	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		pa := rep.A.Stats.PhaseStats[name]
		pb := rep.B.Stats.PhaseStats[name]
		ratioStr := ""
		if r, ok := rep.Ratios["phase:"+name+":avg_ms"]; ok {
			ratioStr = fmt.Sprintf("%.2fx", r)
		}
		b.WriteString(fmt.Sprintf("%-25s %-15.0f %-15.0f %-15s\n",
			name, pa.AvgMs, pb.AvgMs, ratioStr))
	}

	return b.String()
}
