package monitor

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	procs []ProcessInfo
	err   error
	calls int64
}

func (f *fakeLister) ListProcesses() ([]ProcessInfo, error) {
	atomic.AddInt64(&f.calls, 1)
	return f.procs, f.err
}

func testProcs() []ProcessInfo {
	return []ProcessInfo{
		{PID: 1, Name: "rust-graphflow", CPUPercent: 12.5, MemoryMB: 64, Threads: 4},
		{PID: 2, Name: "rust-graphflow-worker", CPUPercent: 7.5, MemoryMB: 36, Threads: 2},
		{PID: 3, Name: "unrelated", CPUPercent: 99, MemoryMB: 999, Threads: 99},
	}
}

func TestSamplerSumsMatchingProcesses(t *testing.T) {
	lister := &fakeLister{procs: testProcs()}
	ticks := make(chan time.Time)

	s := NewSampler(lister, []string{"rust-graphflow"}, time.Second)
	s.ticks = ticks
	s.Start()

	for i := 0; i < 3; i++ {
		ticks <- time.Now()
	}

	samples := s.Stop(time.Second)
	require.Len(t, samples, 3)

	for _, sample := range samples {
		assert.InDelta(t, 20.0, sample.CPUPercent, 1e-9)
		assert.InDelta(t, 100.0, sample.MemoryMB, 1e-9)
		assert.Equal(t, 6, sample.Threads)
	}
}

func TestSamplerSkipsTicksWithNoMatches(t *testing.T) {
	lister := &fakeLister{procs: testProcs()}
	ticks := make(chan time.Time)

	s := NewSampler(lister, []string{"no-such-process"}, time.Second)
	s.ticks = ticks
	s.Start()

	ticks <- time.Now()
	ticks <- time.Now()

	samples := s.Stop(time.Second)
	assert.Empty(t, samples)
	assert.GreaterOrEqual(t, atomic.LoadInt64(&lister.calls), int64(2))
}

func TestSamplerSwallowsEnumerationErrors(t *testing.T) {
	lister := &fakeLister{err: errors.New("permission denied")}
	ticks := make(chan time.Time)

	s := NewSampler(lister, []string{"anything"}, time.Second)
	s.ticks = ticks
	s.Start()

	ticks <- time.Now()

	samples := s.Stop(time.Second)
	assert.Empty(t, samples)
}

func TestSamplerImmediateStop(t *testing.T) {
	s := NewSampler(&fakeLister{procs: testProcs()}, []string{"rust"}, time.Hour)
	s.Start()

	start := time.Now()
	samples := s.Stop(2 * time.Second)
	elapsed := time.Since(start)

	assert.Empty(t, samples)
	assert.Less(t, elapsed, time.Second, "stop should not wait out the join timeout")
}

func TestSamplerStopNeverHangsPastJoinTimeout(t *testing.T) {
	// Never started: the loop will never signal done, so Stop must give up
	// after the join timeout and return what it has.
	s := NewSampler(&fakeLister{}, []string{"x"}, time.Second)

	start := time.Now()
	samples := s.Stop(100 * time.Millisecond)
	elapsed := time.Since(start)

	assert.Empty(t, samples)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestSamplerRealTickerCadence(t *testing.T) {
	lister := &fakeLister{procs: testProcs()}
	s := NewSampler(lister, []string{"rust-graphflow"}, 20*time.Millisecond)
	s.Start()

	time.Sleep(110 * time.Millisecond)
	samples := s.Stop(time.Second)

	// floor(T/I)..ceil(T/I) with generous slack for scheduler jitter.
	assert.GreaterOrEqual(t, len(samples), 2)
	assert.LessOrEqual(t, len(samples), 7)
}

func TestSamplerStopIsIdempotent(t *testing.T) {
	s := NewSampler(&fakeLister{procs: testProcs()}, []string{"rust"}, time.Hour)
	s.Start()

	first := s.Stop(time.Second)
	second := s.Stop(time.Second)
	assert.Equal(t, first, second)
}
