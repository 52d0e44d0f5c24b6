package compare

import (
	"encoding/json"
	"os"
	"time"

	"flowbench/internal/monitor"
	"flowbench/internal/stats"
)

type artifactConfig struct {
	Topic            string `json:"topic"`
	TotalRequests    int    `json:"total_requests"`
	MaxConcurrency   int    `json:"max_concurrency"`
	MonitorResources bool   `json:"monitor_resources"`
}

type serviceArtifact struct {
	Name            string                   `json:"name"`
	Statistics      stats.RunStatistics      `json:"statistics"`
	ResourceSummary stats.ResourceSummary    `json:"resource_summary"`
	ResourceSamples []monitor.ResourceSample `json:"resource_samples"`
}

type artifact struct {
	Timestamp time.Time          `json:"timestamp"`
	Config    artifactConfig     `json:"config"`
	ServiceA  serviceArtifact    `json:"service_a"`
	ServiceB  serviceArtifact    `json:"service_b"`
	Ratios    map[string]float64 `json:"ratios"`
}

// WriteArtifact persists the full raw result set (config, per-service
// statistics with raw latencies, raw resource samples, ratios) as one JSON
// document. A write failure leaves the in-memory report intact; the caller
// reports it and moves on.
func WriteArtifact(path string, rep *Report) error {
	doc := artifact{
		Timestamp: rep.Timestamp,
		Config: artifactConfig{
			Topic:            rep.Config.Topic,
			TotalRequests:    rep.Config.TotalRequests,
			MaxConcurrency:   rep.Config.MaxConcurrency,
			MonitorResources: rep.Config.MonitorResources,
		},
		ServiceA: serviceArtifactOf(rep.A),
		ServiceB: serviceArtifactOf(rep.B),
		Ratios:   rep.Ratios,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func serviceArtifactOf(res ServiceResult) serviceArtifact {
	samples := res.Run.ResourceSamples
	if samples == nil {
		samples = []monitor.ResourceSample{}
	}
	return serviceArtifact{
		Name:            res.Name,
		Statistics:      res.Stats,
		ResourceSummary: res.Resources,
		ResourceSamples: samples,
	}
}
