package compare

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"flowbench/internal/monitor"
	"flowbench/internal/runner"
	"flowbench/internal/stats"
)

// ServiceConfig identifies one service under test.
type ServiceConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`

	// Process-name substrings identifying this service on the local host,
	// for resource monitoring.
	ProcessMatch []string `json:"process_match"`
}

type Config struct {
	ServiceA ServiceConfig `json:"service_a"`
	ServiceB ServiceConfig `json:"service_b"`

	Topic            string        `json:"topic"`
	TotalRequests    int           `json:"total_requests"`
	MaxConcurrency   int           `json:"max_concurrency"`
	Timeout          time.Duration `json:"-"`
	MonitorResources bool          `json:"monitor_resources"`
	SampleInterval   time.Duration `json:"-"`
}

// ServiceResult is one service's side of a finished comparison.
type ServiceResult struct {
	Name      string
	Stats     stats.RunStatistics
	Resources stats.ResourceSummary
	Run       *runner.BenchmarkRun
}

// Report is built only after both runs complete; it is never partially
// populated.
type Report struct {
	Timestamp time.Time
	Config    Config
	A         ServiceResult
	B         ServiceResult

	// metric(B) / metric(A); 0 when the denominator is 0.
	Ratios map[string]float64
}

// RunEvent labels a live dispatch snapshot with the service it belongs to.
type RunEvent struct {
	Service  string
	Total    int
	Snapshot runner.StatsSnapshot
}

// Comparer drives a full comparison: preflight both services, then for each
// in turn run the sampler and dispatcher, aggregate, and compute ratios.
// Services run sequentially so they never contend for host resources.
type Comparer struct {
	cfg    Config
	lister monitor.ProcessLister
	probe  *http.Client

	// Events receives live snapshots during each dispatch. Consumers that
	// fall behind simply miss updates.
	Events chan RunEvent

	// OnServiceStart, when set, is called before each service's dispatch.
	OnServiceStart func(name, url string)
}

func NewComparer(cfg Config, lister monitor.ProcessLister) *Comparer {
	return &Comparer{
		cfg:    cfg,
		lister: lister,
		probe:  &http.Client{Timeout: 5 * time.Second},
		Events: make(chan RunEvent, 100),
	}
}

// Run performs the comparison. A preflight failure aborts the whole run
// before any load is dispatched; the error names the failing service.
func (c *Comparer) Run(ctx context.Context) (*Report, error) {
	defer close(c.Events)

	for _, svc := range []ServiceConfig{c.cfg.ServiceA, c.cfg.ServiceB} {
		if err := c.preflight(ctx, svc); err != nil {
			return nil, fmt.Errorf("preflight failed for %s (%s): %w", svc.Name, svc.URL, err)
		}
		slog.Info("service healthy", slog.String("service", svc.Name), slog.String("url", svc.URL))
	}

	resA, err := c.runService(ctx, c.cfg.ServiceA)
	if err != nil {
		return nil, err
	}
	resB, err := c.runService(ctx, c.cfg.ServiceB)
	if err != nil {
		return nil, err
	}

	return &Report{
		Timestamp: time.Now(),
		Config:    c.cfg,
		A:         resA,
		B:         resB,
		Ratios:    computeRatios(resA, resB),
	}, nil
}

func (c *Comparer) preflight(ctx context.Context, svc ServiceConfig) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.URL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.probe.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Comparer) runService(ctx context.Context, svc ServiceConfig) (ServiceResult, error) {
	if c.OnServiceStart != nil {
		c.OnServiceStart(svc.Name, svc.URL)
	}
	slog.Info("starting benchmark run",
		slog.String("service", svc.Name),
		slog.Int("requests", c.cfg.TotalRequests),
		slog.Int("concurrency", c.cfg.MaxConcurrency))

	var sampler *monitor.Sampler
	if c.cfg.MonitorResources {
		sampler = monitor.NewSampler(c.lister, svc.ProcessMatch, c.cfg.SampleInterval)
		sampler.Start()
	}

	updates := make(runner.StatsUpdateChan, 100)
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		for snap := range updates {
			select {
			case c.Events <- RunEvent{Service: svc.Name, Total: c.cfg.TotalRequests, Snapshot: snap}:
			default:
			}
		}
	}()

	d := runner.NewDispatcher(runner.Config{
		URL:            svc.URL,
		Topic:          c.cfg.Topic,
		TotalRequests:  c.cfg.TotalRequests,
		MaxConcurrency: c.cfg.MaxConcurrency,
		Timeout:        c.cfg.Timeout,
	}, updates)

	run := d.Dispatch(ctx)
	close(updates)
	<-forwardDone

	if sampler != nil {
		run.ResourceSamples = sampler.Stop(2 * time.Second)
	}

	st := stats.AggregateRun(svc.URL, run.TotalRequests,
		run.SuccessfulLatencies(), run.PhaseDurations(), run.WallTimeSeconds)

	slog.Info("benchmark run finished",
		slog.String("service", svc.Name),
		slog.Int("success", st.SuccessCount),
		slog.Int("errors", st.ErrorCount),
		slog.Float64("wallSeconds", st.WallTimeSeconds))

	return ServiceResult{
		Name:      svc.Name,
		Stats:     st,
		Resources: stats.AggregateResources(run.ResourceSamples),
		Run:       run,
	}, nil
}

// computeRatios builds metric(B)/metric(A) for every comparable numeric
// metric, with ratio = 0 when the denominator is 0.
func computeRatios(a, b ServiceResult) map[string]float64 {
	ratio := func(num, den float64) float64 {
		if den == 0 {
			return 0
		}
		return num / den
	}

	out := map[string]float64{
		"avg_latency_ms":  ratio(b.Stats.AvgLatencyMs, a.Stats.AvgLatencyMs),
		"p50_latency_ms":  ratio(b.Stats.P50LatencyMs, a.Stats.P50LatencyMs),
		"p95_latency_ms":  ratio(b.Stats.P95LatencyMs, a.Stats.P95LatencyMs),
		"p99_latency_ms":  ratio(b.Stats.P99LatencyMs, a.Stats.P99LatencyMs),
		"min_latency_ms":  ratio(b.Stats.MinLatencyMs, a.Stats.MinLatencyMs),
		"max_latency_ms":  ratio(b.Stats.MaxLatencyMs, a.Stats.MaxLatencyMs),
		"throughput_rps":  ratio(b.Stats.ThroughputRPS, a.Stats.ThroughputRPS),
		"error_rate":      ratio(b.Stats.ErrorRate, a.Stats.ErrorRate),
		"avg_cpu_percent": ratio(b.Resources.AvgCPUPercent, a.Resources.AvgCPUPercent),
		"avg_memory_mb":   ratio(b.Resources.AvgMemoryMB, a.Resources.AvgMemoryMB),
		"max_memory_mb":   ratio(b.Resources.MaxMemoryMB, a.Resources.MaxMemoryMB),
	}

	// Per-phase ratios only where both runs observed the phase.
	for name, pa := range a.Stats.PhaseStats {
		if pb, ok := b.Stats.PhaseStats[name]; ok {
			out["phase:"+name+":avg_ms"] = ratio(pb.AvgMs, pa.AvgMs)
		}
	}

	return out
}
