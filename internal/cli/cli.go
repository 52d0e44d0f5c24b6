package cli

import (
	"context"
	"fmt"

	"flowbench/internal/compare"
	"flowbench/internal/monitor"
	"flowbench/internal/report"
	"flowbench/internal/storage"

	"github.com/google/uuid"
)

// Start runs a full comparison headless: progress line per service, final
// table, artifact and history persistence. Returns a process exit code.
func Start(cfg compare.Config, artifactPath string) int {
	printHeader(cfg)

	comp := compare.NewComparer(cfg, monitor.NewProcessLister())
	comp.OnServiceStart = func(name, url string) {
		fmt.Printf("\n🚀 Testing %s (%s)...\n", name, url)
	}

	type outcome struct {
		rep *compare.Report
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		rep, err := comp.Run(context.Background())
		done <- outcome{rep, err}
	}()

	events := comp.Events
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Comparer closed its event stream; wait for the outcome.
				events = nil
				continue
			}
			fmt.Printf("\r   %d/%d | Inf: %3d | OK: %d | Err: %d | P95: %.0fms   ",
				ev.Snapshot.Completed, ev.Total,
				ev.Snapshot.Inflight,
				ev.Snapshot.Success,
				ev.Snapshot.Fail,
				ev.Snapshot.P95Ms,
			)

		case out := <-done:
			fmt.Print("\n")
			if out.err != nil {
				fmt.Printf("\n❌ %v\n", out.err)
				fmt.Println("   No requests were dispatched and no artifact was written.")
				return 1
			}

			fmt.Println(report.Render(out.rep))
			persist(out.rep, artifactPath)
			return 0
		}
	}
}

func printHeader(cfg compare.Config) {
	fmt.Printf("\n⚖️  FLOWBENCH SERVICE COMPARISON\n")
	fmt.Printf("======================================================================\n")
	fmt.Printf("Service A  : %s (%s)\n", cfg.ServiceA.Name, cfg.ServiceA.URL)
	fmt.Printf("Service B  : %s (%s)\n", cfg.ServiceB.Name, cfg.ServiceB.URL)
	fmt.Printf("Topic      : %s\n", cfg.Topic)
	fmt.Printf("Requests   : %d (max %d in flight)\n", cfg.TotalRequests, cfg.MaxConcurrency)
	fmt.Printf("Timeout    : %s\n", cfg.Timeout)
	monitoring := "Disabled"
	if cfg.MonitorResources {
		monitoring = fmt.Sprintf("Enabled (every %s)", cfg.SampleInterval)
	}
	fmt.Printf("Monitoring : %s\n", monitoring)
	fmt.Printf("======================================================================\n")
}

// persist writes the artifact and appends the history record. Failures here
// are reported but never discard the already-rendered report.
func persist(rep *compare.Report, artifactPath string) {
	if artifactPath != "" {
		if err := compare.WriteArtifact(artifactPath, rep); err != nil {
			fmt.Printf("⚠️  Failed to write artifact: %v\n", err)
		} else {
			fmt.Printf("💾 Detailed results saved to %s\n", artifactPath)
		}
	}

	store, err := storage.NewStore()
	if err != nil {
		fmt.Printf("⚠️  History store unavailable: %v\n", err)
		return
	}
	defer store.Close()

	if err := store.Save(storage.NewRecord(uuid.New().String(), rep)); err != nil {
		fmt.Printf("⚠️  Failed to append history: %v\n", err)
	}
}
