package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Live holds real-time aggregated metrics for a dispatch in progress.
type Live struct {
	Completed uint64
	Success   uint64
	Fail      uint64

	// Latency histogram (microseconds)
	Latency *SafeHistogram

	mu         sync.Mutex
	errorKinds map[string]uint64
}

func NewLive() *Live {
	return &Live{
		Latency:    NewSafeHistogram(),
		errorKinds: make(map[string]uint64),
	}
}

func (s *Live) Add(success bool, latency time.Duration, errorKind string) {
	atomic.AddUint64(&s.Completed, 1)
	if success {
		atomic.AddUint64(&s.Success, 1)
	} else {
		atomic.AddUint64(&s.Fail, 1)
		s.mu.Lock()
		s.errorKinds[errorKind]++
		s.mu.Unlock()
	}
	s.Latency.RecordValue(latency.Microseconds())
}

func (s *Live) ErrorRate() float64 {
	done := atomic.LoadUint64(&s.Completed)
	if done == 0 {
		return 0
	}
	fails := atomic.LoadUint64(&s.Fail)
	return (float64(fails) / float64(done)) * 100
}

// GetErrorKinds returns a copy of the per-kind failure counts.
func (s *Live) GetErrorKinds() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.errorKinds))
	for k, v := range s.errorKinds {
		out[k] = v
	}
	return out
}

func (s *Live) GetP50Ms() float64 {
	return float64(s.Latency.ValueAtQuantile(50)) / 1000.0
}

func (s *Live) GetP95Ms() float64 {
	return float64(s.Latency.ValueAtQuantile(95)) / 1000.0
}

func (s *Live) GetP99Ms() float64 {
	return float64(s.Latency.ValueAtQuantile(99)) / 1000.0
}
