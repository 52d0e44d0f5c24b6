package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbench/internal/stats"
)

func fixedLatencyServer(latency time.Duration, taskTimes map[string]int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(latency)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"session_id": "s",
			"task_times": taskTimes,
		})
	}))
}

func dispatch(t *testing.T, url string, total, concurrency int, timeout time.Duration) *BenchmarkRun {
	t.Helper()
	d := NewDispatcher(Config{
		URL:            url,
		Topic:          "test topic",
		TotalRequests:  total,
		MaxConcurrency: concurrency,
		Timeout:        timeout,
	}, nil)
	return d.Dispatch(context.Background())
}

func TestDispatchAllSucceed(t *testing.T) {
	srv := fixedLatencyServer(100*time.Millisecond, map[string]int64{"research": 42})
	defer srv.Close()

	run := dispatch(t, srv.URL, 20, 5, 10*time.Second)

	require.Len(t, run.Results, 20)
	latencies := run.SuccessfulLatencies()
	assert.Len(t, latencies, 20)

	st := stats.AggregateRun(srv.URL, run.TotalRequests, latencies, run.PhaseDurations(), run.WallTimeSeconds)
	assert.Equal(t, 20, st.SuccessCount)
	assert.Equal(t, 0, st.ErrorCount)
	assert.InDelta(t, 100.0, st.AvgLatencyMs, 60.0)

	// N <= 20 fallback: p95 == max
	assert.Equal(t, st.MaxLatencyMs, st.P95LatencyMs)

	// 20 requests at ~100ms with 5 in flight needs at least 4 rounds.
	assert.GreaterOrEqual(t, run.WallTimeSeconds, 0.35)
}

func TestDispatchBoundsConcurrency(t *testing.T) {
	var inflight, maxInflight int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt64(&inflight, 1)
		for {
			prev := atomic.LoadInt64(&maxInflight)
			if cur <= prev || atomic.CompareAndSwapInt64(&maxInflight, prev, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt64(&inflight, -1)
		w.Write([]byte(`{"task_times":{}}`))
	}))
	defer srv.Close()

	run := dispatch(t, srv.URL, 30, 4, 5*time.Second)

	assert.Len(t, run.Results, 30)
	assert.LessOrEqual(t, atomic.LoadInt64(&maxInflight), int64(4))
}

func TestDispatchCountsInvariant(t *testing.T) {
	var n int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Every third request fails; failures never abort siblings.
		if atomic.AddInt64(&n, 1)%3 == 0 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"task_times":{"research":10}}`))
	}))
	defer srv.Close()

	run := dispatch(t, srv.URL, 15, 5, 5*time.Second)

	success := len(run.SuccessfulLatencies())
	errs := 0
	for _, res := range run.Results {
		if !res.Success {
			errs++
			assert.Equal(t, FailureBadStatus, res.FailureKind)
		}
	}
	assert.Equal(t, 15, success+errs)
	assert.Equal(t, 5, errs)
}

func TestDispatchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not json"))
	}))
	defer srv.Close()

	run := dispatch(t, srv.URL, 3, 3, 5*time.Second)

	for _, res := range run.Results {
		assert.False(t, res.Success)
		assert.Equal(t, FailureBadBody, res.FailureKind)
	}
}

func TestDispatchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"task_times":{}}`))
	}))
	defer srv.Close()

	run := dispatch(t, srv.URL, 2, 2, 50*time.Millisecond)

	require.Len(t, run.Results, 2)
	for _, res := range run.Results {
		assert.False(t, res.Success)
		assert.Equal(t, FailureTimeout, res.FailureKind)
	}
}

func TestDispatchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	run := dispatch(t, srv.URL, 2, 2, time.Second)

	require.Len(t, run.Results, 2)
	for _, res := range run.Results {
		assert.False(t, res.Success)
		assert.Equal(t, FailureTransport, res.FailureKind)
	}
}

func TestDispatchCarriesTaskTimesAndPayload(t *testing.T) {
	srv := fixedLatencyServer(0, map[string]int64{"research": 42, "summarize": 7})
	defer srv.Close()

	run := dispatch(t, srv.URL, 1, 1, time.Second)

	require.Len(t, run.Results, 1)
	res := run.Results[0]
	assert.True(t, res.Success)
	assert.Equal(t, int64(42), res.TaskTimes["research"])
	assert.NotEmpty(t, res.Payload)
	assert.NotEmpty(t, res.RequestID)

	phases := run.PhaseDurations()
	assert.Equal(t, []float64{42}, phases["research"])
	assert.Equal(t, []float64{7}, phases["summarize"])
}

func TestDispatchSuffixesTopic(t *testing.T) {
	var gotTopic atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Topic string `json:"topic"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotTopic.Store(req.Topic)
		w.Write([]byte(`{"task_times":{}}`))
	}))
	defer srv.Close()

	dispatch(t, srv.URL, 1, 1, time.Second)

	assert.Equal(t, "test topic (request 1)", gotTopic.Load())
}

func TestDispatchPublishesSnapshots(t *testing.T) {
	srv := fixedLatencyServer(50*time.Millisecond, map[string]int64{})
	defer srv.Close()

	updates := make(StatsUpdateChan, 100)
	d := NewDispatcher(Config{
		URL:            srv.URL,
		Topic:          "t",
		TotalRequests:  4,
		MaxConcurrency: 2,
		Timeout:        time.Second,
	}, updates)
	d.Dispatch(context.Background())

	// At minimum the final snapshot is pushed after the last attempt.
	var last StatsSnapshot
	found := false
	for {
		select {
		case s := <-updates:
			last = s
			found = true
			continue
		default:
		}
		break
	}
	require.True(t, found)
	assert.Equal(t, uint64(4), last.Completed)
	assert.Equal(t, uint64(4), last.Success)
}
