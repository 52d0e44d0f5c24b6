package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flowbench/internal/banner"
	"flowbench/internal/cli"
	"flowbench/internal/compare"
	"flowbench/internal/report"
	"flowbench/internal/storage"
	"flowbench/internal/stub"
	"flowbench/internal/tui/live"
)

var (
	cfgFile string

	// CLI Flags
	urlA        string
	urlB        string
	nameA       string
	nameB       string
	topic       string
	requests    int
	concurrency int
	timeout     time.Duration
	interval    time.Duration
	matchA      []string
	matchB      []string
	noMonitor   bool
	outPath     string
	liveView    bool
)

var rootCmd = &cobra.Command{
	Use:   "flowbench",
	Short: "FlowBench - Comparative Service Benchmark",
	Long: `
FlowBench drives identical load against two services implementing the same
research-workflow contract, samples their host resource usage while the load
runs, and reports latency/throughput/resource ratios between them.

All runs are read-only against the targets. Use "flowbench stub" to bring up
a local synthetic target for trying the tool out.`,
	Run: func(cmd *cobra.Command, args []string) {
		runComparison()
	},
}

func Execute() {
	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(stubCmd)
	rootCmd.AddCommand(historyCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flowbench.yaml)")

	rootCmd.Flags().StringVar(&urlA, "url-a", "http://localhost:3000", "Base URL of service A")
	rootCmd.Flags().StringVar(&urlB, "url-b", "http://localhost:3001", "Base URL of service B")
	rootCmd.Flags().StringVar(&nameA, "name-a", "service-a", "Display name for service A")
	rootCmd.Flags().StringVar(&nameB, "name-b", "service-b", "Display name for service B")
	rootCmd.Flags().StringVarP(&topic, "topic", "t", "artificial intelligence in healthcare", "Research topic sent to both services")
	rootCmd.Flags().IntVarP(&requests, "requests", "n", 10, "Total number of requests per service")
	rootCmd.Flags().IntVarP(&concurrency, "concurrency", "c", 5, "Maximum concurrent requests in flight")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 120*time.Second, "Per-request timeout")
	rootCmd.Flags().DurationVar(&interval, "interval", time.Second, "Resource sampling interval")
	rootCmd.Flags().StringSliceVar(&matchA, "match-a", nil, "Process-name substrings identifying service A")
	rootCmd.Flags().StringSliceVar(&matchB, "match-b", nil, "Process-name substrings identifying service B")
	rootCmd.Flags().BoolVar(&noMonitor, "no-monitor", false, "Disable resource monitoring")
	rootCmd.Flags().StringVarP(&outPath, "out", "o", "benchmark_results.json", "Artifact path for the full raw results")
	rootCmd.Flags().BoolVar(&liveView, "live", false, "Show the live dashboard instead of plain progress output")

	viper.BindPFlag("topic", rootCmd.Flags().Lookup("topic"))
	viper.BindPFlag("requests", rootCmd.Flags().Lookup("requests"))
	viper.BindPFlag("concurrency", rootCmd.Flags().Lookup("concurrency"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".flowbench")
		}
	}
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func runComparison() {
	cfg := compare.Config{
		ServiceA: compare.ServiceConfig{
			Name:         nameA,
			URL:          urlA,
			ProcessMatch: matchA,
		},
		ServiceB: compare.ServiceConfig{
			Name:         nameB,
			URL:          urlB,
			ProcessMatch: matchB,
		},
		// Effective values come from viper so config-file and env settings
		// apply when the flag was not given.
		Topic:            viper.GetString("topic"),
		TotalRequests:    viper.GetInt("requests"),
		MaxConcurrency:   viper.GetInt("concurrency"),
		Timeout:          timeout,
		MonitorResources: !noMonitor,
		SampleInterval:   interval,
	}

	if cfg.TotalRequests <= 0 || cfg.MaxConcurrency <= 0 {
		fmt.Println("❌ --requests and --concurrency must be positive")
		os.Exit(1)
	}

	if liveView {
		rep, err := live.Run(cfg)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
		fmt.Println(report.Render(rep))
		if err := compare.WriteArtifact(outPath, rep); err != nil {
			fmt.Printf("⚠️  Failed to write artifact: %v\n", err)
		} else {
			fmt.Printf("💾 Detailed results saved to %s\n", outPath)
		}
		saveHistory(rep)
		return
	}

	os.Exit(cli.Start(cfg, outPath))
}

func saveHistory(rep *compare.Report) {
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

// --- Stub Subcommand ---
var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run a local synthetic research service",
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		errRate, _ := cmd.Flags().GetFloat64("err-rate")
		stub.Start(stub.ServerConfig{Port: port, ErrRate: errRate})
		select {}
	},
}

// --- History Subcommand ---
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past comparison runs",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := storage.NewStore()
		if err != nil {
			fmt.Printf("❌ History store unavailable: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		records := store.List()
		if len(records) == 0 {
			fmt.Println("No comparisons recorded yet.")
			return
		}

		fmt.Printf("%-20s %-30s %-8s %-12s %-12s\n",
			"When", "Topic", "Reqs", "A avg(ms)", "B avg(ms)")
		for _, rec := range records {
			fmt.Printf("%-20s %-30.30s %-8d %-12.0f %-12.0f\n",
				rec.Timestamp.Format("2006-01-02 15:04:05"),
				rec.Topic,
				rec.TotalRequests,
				rec.ServiceA.AvgLatencyMs,
				rec.ServiceB.AvgLatencyMs,
			)
		}
	},
}

func init() {
	stubCmd.Flags().IntP("port", "p", 3000, "Port to run the stub service on")
	stubCmd.Flags().Float64("err-rate", 0, "Fraction of requests answered with a 500")
}
