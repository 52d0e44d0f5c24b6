// Package stub serves the research-workflow contract with simulated phase
// latencies, giving the benchmark a local target to hit.
package stub

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type ServerConfig struct {
	Port int

	// Fraction of /research requests answered with a 500, for exercising
	// the error path. 0 means every request succeeds.
	ErrRate float64
}

type researchRequest struct {
	Topic string `json:"topic"`
}

type researchResponse struct {
	SessionID string           `json:"session_id"`
	Topic     string           `json:"topic"`
	Summary   string           `json:"summary"`
	TaskTimes map[string]int64 `json:"task_times"`
}

// phase name -> [min, max) simulated duration in ms
var phases = []struct {
	name     string
	min, max int
}{
	{"extract_questions", 5, 15},
	{"research", 20, 60},
	{"summarize", 10, 30},
	{"generate_report", 5, 20},
}

// Handler returns the stub's HTTP handler, exposed separately so tests can
// mount it on an httptest server.
func Handler(cfg ServerConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/research", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req researchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}

		if cfg.ErrRate > 0 && rand.Float64() < cfg.ErrRate {
			http.Error(w, "simulated workflow failure", http.StatusInternalServerError)
			return
		}

		taskTimes := make(map[string]int64, len(phases))
		for _, p := range phases {
			ms := int64(rand.Intn(p.max-p.min) + p.min)
			taskTimes[p.name] = ms
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}

		resp := researchResponse{
			SessionID: uuid.New().String(),
			Topic:     req.Topic,
			Summary:   fmt.Sprintf("Synthetic research summary for %q", req.Topic),
			TaskTimes: taskTimes,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	return mux
}

// Start runs the stub server in the background.
func Start(cfg ServerConfig) {
	addr := fmt.Sprintf(":%d", cfg.Port)
	fmt.Printf("👻 Stub research service running on http://localhost%s\n", addr)
	fmt.Println("   Endpoints: GET /health, POST /research")

	server := &http.Server{
		Addr:    addr,
		Handler: Handler(cfg),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Stub server failed: %v\n", err)
		}
	}()
}
