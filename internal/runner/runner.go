package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"flowbench/internal/stats"

	"github.com/alitto/pond"
	"github.com/google/uuid"
)

// StatsSnapshot is sent over the updates channel while a dispatch runs
type StatsSnapshot struct {
	Completed uint64
	Success   uint64
	Fail      uint64
	Inflight  int64

	// Pre-calculated percentiles for the UI (cheap copy)
	P50Ms float64
	P95Ms float64
	P99Ms float64
	MaxMs int64
}

// StatsUpdateChan is the channel type
type StatsUpdateChan chan StatsSnapshot

type researchRequest struct {
	Topic string `json:"topic"`
}

type researchResponse struct {
	TaskTimes map[string]int64 `json:"task_times"`
}

// Dispatcher issues a bounded-concurrency batch of requests against one
// service endpoint and records one AttemptResult per attempt.
type Dispatcher struct {
	Cfg    Config
	Live   *stats.Live
	Client *http.Client

	mu      sync.Mutex
	results []AttemptResult

	inflight int64

	// Event Channel
	Updates StatsUpdateChan
}

func NewDispatcher(cfg Config, updates StatsUpdateChan) *Dispatcher {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: t,
	}

	if updates == nil {
		// Avoid nil panics if not provided
		updates = make(StatsUpdateChan, 10)
	}

	return &Dispatcher{
		Cfg:     cfg,
		Live:    stats.NewLive(),
		Client:  client,
		Updates: updates,
	}
}

// Dispatch issues Cfg.TotalRequests attempts with at most Cfg.MaxConcurrency
// in flight, blocking until the last attempt completes. The returned run is
// sealed: success_count + error_count always equals TotalRequests.
func (d *Dispatcher) Dispatch(ctx context.Context) *BenchmarkRun {
	tickCtx, stopTicks := context.WithCancel(ctx)
	defer stopTicks()
	d.startTickLoop(tickCtx, 200*time.Millisecond)

	// The pool is the admission gate: workers == slots, Submit blocks
	// until a slot frees. No fairness guarantee across waiters.
	pool := pond.New(d.Cfg.MaxConcurrency, 0, pond.MinWorkers(d.Cfg.MaxConcurrency))

	start := time.Now()
	for i := 1; i <= d.Cfg.TotalRequests; i++ {
		attempt := i
		pool.Submit(func() {
			d.executeAttempt(ctx, attempt)
		})
	}
	pool.StopAndWait()
	wall := time.Since(start)

	d.sendUpdate()

	d.mu.Lock()
	results := d.results
	d.results = nil
	d.mu.Unlock()

	return &BenchmarkRun{
		ServiceURL:      d.Cfg.URL,
		Topic:           d.Cfg.Topic,
		TotalRequests:   d.Cfg.TotalRequests,
		MaxConcurrency:  d.Cfg.MaxConcurrency,
		Results:         results,
		WallTimeSeconds: wall.Seconds(),
	}
}

// startTickLoop starts a goroutine that pushes stats updates
func (d *Dispatcher) startTickLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.sendUpdate()
			}
		}
	}()
}

func (d *Dispatcher) sendUpdate() {
	s := StatsSnapshot{
		Completed: atomic.LoadUint64(&d.Live.Completed),
		Success:   atomic.LoadUint64(&d.Live.Success),
		Fail:      atomic.LoadUint64(&d.Live.Fail),
		Inflight:  atomic.LoadInt64(&d.inflight),
		P50Ms:     d.Live.GetP50Ms(),
		P95Ms:     d.Live.GetP95Ms(),
		P99Ms:     d.Live.GetP99Ms(),
		MaxMs:     d.Live.Latency.Max() / 1000,
	}

	// Non-blocking send
	select {
	case d.Updates <- s:
	default:
		// Drop update if channel full, consumer acts as backpressure
	}
}

func (d *Dispatcher) executeAttempt(ctx context.Context, attempt int) {
	atomic.AddInt64(&d.inflight, 1)
	defer atomic.AddInt64(&d.inflight, -1)

	requestID := uuid.New().String()
	// Attempt index folded into the topic so the two services can be told
	// apart in their own logs.
	topic := fmt.Sprintf("%s (request %d)", d.Cfg.Topic, attempt)
	bodyBytes, _ := json.Marshal(researchRequest{Topic: topic})

	res := AttemptResult{RequestID: requestID, Attempt: attempt}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.Cfg.URL+"/research", bytes.NewReader(bodyBytes))
	if err != nil {
		res.FailureKind = FailureTransport
		res.FailureMsg = err.Error()
		d.record(res, 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := d.Client.Do(req)
	if err != nil {
		latency := time.Since(start)
		res.LatencyMs = toMs(latency)
		res.FailureKind = classifyTransportError(err)
		res.FailureMsg = err.Error()
		d.record(res, latency)
		return
	}

	raw, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	// Timed from send to full response receipt.
	latency := time.Since(start)
	res.LatencyMs = toMs(latency)
	res.Status = resp.StatusCode

	switch {
	case readErr != nil:
		res.FailureKind = classifyTransportError(readErr)
		res.FailureMsg = readErr.Error()
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		res.FailureKind = FailureBadStatus
		res.FailureMsg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	default:
		var parsed researchResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			res.FailureKind = FailureBadBody
			res.FailureMsg = err.Error()
		} else {
			res.Success = true
			res.TaskTimes = parsed.TaskTimes
			res.Payload = json.RawMessage(raw)
		}
	}

	d.record(res, latency)
}

func (d *Dispatcher) record(res AttemptResult, latency time.Duration) {
	d.Live.Add(res.Success, latency, string(res.FailureKind))

	d.mu.Lock()
	d.results = append(d.results, res)
	d.mu.Unlock()
}

func (d *Dispatcher) GetInflight() int64 {
	return atomic.LoadInt64(&d.inflight)
}

func classifyTransportError(err error) FailureKind {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return FailureTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureTransport
}

func toMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
