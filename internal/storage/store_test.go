package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbench/internal/compare"
	"flowbench/internal/runner"
	"flowbench/internal/stats"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStoreAt(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(id string, ts time.Time, topic string) ComparisonRecord {
	return ComparisonRecord{
		ID:            id,
		Timestamp:     ts,
		Topic:         topic,
		TotalRequests: 10,
		ServiceA:      RunDigest{URL: "http://a", SuccessCount: 10, AvgLatencyMs: 100},
		ServiceB:      RunDigest{URL: "http://b", SuccessCount: 10, AvgLatencyMs: 50},
		Ratios:        map[string]float64{"avg_latency_ms": 0.5},
	}
}

func TestStoreSaveAndGet(t *testing.T) {
	store := tempStore(t)

	rec := record("run-1", time.Now(), "healthcare")
	require.NoError(t, store.Save(rec))

	got, err := store.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, "healthcare", got.Topic)
	assert.Equal(t, 50.0, got.ServiceB.AvgLatencyMs)
	assert.Equal(t, 0.5, got.Ratios["avg_latency_ms"])
}

func TestStoreGetMissing(t *testing.T) {
	store := tempStore(t)

	got, err := store.Get("nope")
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestStoreListNewestFirst(t *testing.T) {
	store := tempStore(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(record("old", base, "first")))
	require.NoError(t, store.Save(record("mid", base.Add(time.Hour), "second")))
	require.NoError(t, store.Save(record("new", base.Add(2*time.Hour), "third")))

	records := store.List()
	require.Len(t, records, 3)
	assert.Equal(t, "new", records[0].ID)
	assert.Equal(t, "mid", records[1].ID)
	assert.Equal(t, "old", records[2].ID)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := NewStoreAt(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(record("kept", time.Now(), "durable")))
	require.NoError(t, store.Close())

	reopened, err := NewStoreAt(path)
	require.NoError(t, err)
	defer reopened.Close()

	records := reopened.List()
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0].ID)
}

func TestNewRecordDigestsReport(t *testing.T) {
	rep := &compare.Report{
		Timestamp: time.Now(),
		Config: compare.Config{
			Topic:          "quantum computing",
			TotalRequests:  20,
			MaxConcurrency: 5,
		},
		A: compare.ServiceResult{
			Name: "alpha",
			Stats: stats.RunStatistics{
				ServiceURL:    "http://a",
				SuccessCount:  19,
				ErrorCount:    1,
				AvgLatencyMs:  120,
				P95LatencyMs:  200,
				ThroughputRPS: 8,
			},
			Run: &runner.BenchmarkRun{},
		},
		B: compare.ServiceResult{
			Name: "beta",
			Stats: stats.RunStatistics{
				ServiceURL:   "http://b",
				SuccessCount: 20,
				AvgLatencyMs: 60,
			},
			Run: &runner.BenchmarkRun{},
		},
		Ratios: map[string]float64{"avg_latency_ms": 0.5},
	}

	rec := NewRecord("abc", rep)
	assert.Equal(t, "abc", rec.ID)
	assert.Equal(t, "quantum computing", rec.Topic)
	assert.Equal(t, 20, rec.TotalRequests)
	assert.Equal(t, 5, rec.MaxConcurrency)
	assert.Equal(t, "http://a", rec.ServiceA.URL)
	assert.Equal(t, 1, rec.ServiceA.ErrorCount)
	assert.Equal(t, 60.0, rec.ServiceB.AvgLatencyMs)
	assert.Equal(t, rep.Ratios, rec.Ratios)
}
