package monitor

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ResourceSample is the usage summed over all matched processes at one tick.
type ResourceSample struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	Threads    int     `json:"threads"`
}

// Sampler polls the process table on a fixed interval and accumulates one
// sample per tick, summed across every process whose name contains at least
// one of the configured substrings. It runs independently of the dispatcher;
// ticks are not correlated with any in-flight request.
type Sampler struct {
	lister   ProcessLister
	filters  []string
	interval time.Duration

	// Injectable tick source for deterministic tests. When nil, Start
	// creates a time.Ticker at the configured interval.
	ticks <-chan time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	samples []ResourceSample
}

func NewSampler(lister ProcessLister, nameFilters []string, interval time.Duration) *Sampler {
	return &Sampler{
		lister:   lister,
		filters:  nameFilters,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sampling loop. The first sample lands roughly one
// interval after Start.
func (s *Sampler) Start() {
	go s.run()
}

// Stop signals the loop to exit after its current tick and waits up to
// joinTimeout for it to finish, then returns whatever samples were
// accumulated. It never blocks past joinTimeout; an overrunning loop is a
// monitoring degradation, not a fatal error.
func (s *Sampler) Stop(joinTimeout time.Duration) []ResourceSample {
	s.stopOnce.Do(func() { close(s.stopCh) })

	select {
	case <-s.done:
	case <-time.After(joinTimeout):
		slog.Warn("resource sampler did not stop within join timeout",
			slog.Duration("joinTimeout", joinTimeout))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ResourceSample, len(s.samples))
	copy(out, s.samples)
	return out
}

func (s *Sampler) run() {
	defer close(s.done)

	ticks := s.ticks
	if ticks == nil {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticks:
			s.sampleOnce()
		}
	}
}

func (s *Sampler) sampleOnce() {
	procs, err := s.lister.ListProcesses()
	if err != nil {
		slog.Warn("process enumeration failed, skipping tick", slog.String("error", err.Error()))
		return
	}

	var sample ResourceSample
	matched := 0
	for _, p := range procs {
		if !s.matches(p.Name) {
			continue
		}
		sample.CPUPercent += p.CPUPercent
		sample.MemoryMB += p.MemoryMB
		sample.Threads += int(p.Threads)
		matched++
	}

	// No matching processes means the target has not started (or already
	// exited); recording zeros here would pollute the statistics.
	if matched == 0 {
		return
	}

	s.mu.Lock()
	s.samples = append(s.samples, sample)
	s.mu.Unlock()
}

func (s *Sampler) matches(name string) bool {
	for _, f := range s.filters {
		if f != "" && strings.Contains(name, f) {
			return true
		}
	}
	return false
}
