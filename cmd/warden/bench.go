package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var benchFlags struct {
	target      string
	duration    time.Duration
	rate        int
	concurrency int
	identity    string
	algorithm   string
	cost        int64
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Load test a running Warden instance",
	Long: `Generate paced admission checks against a running Warden instance and
report throughput, admit/block counts, and latency percentiles.

Examples:
  # Basic load test
  warden bench --target http://localhost:8181

  # High load against the sliding window algorithm
  warden bench --rate 500 --concurrency 8 --algorithm sliding_window

  # Weighted requests
  warden bench --cost 5 --duration 1m`,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().StringVar(&benchFlags.target, "target", "http://localhost:8181", "warden base URL")
	benchCmd.Flags().DurationVar(&benchFlags.duration, "duration", 30*time.Second, "test duration")
	benchCmd.Flags().IntVar(&benchFlags.rate, "rate", 50, "requests per second")
	benchCmd.Flags().IntVar(&benchFlags.concurrency, "concurrency", 4, "concurrent clients")
	benchCmd.Flags().StringVar(&benchFlags.identity, "identity", "bench", "identity to check")
	benchCmd.Flags().StringVar(&benchFlags.algorithm, "algorithm", "token_bucket", "algorithm to exercise")
	benchCmd.Flags().Int64Var(&benchFlags.cost, "cost", 1, "cost per request")
}

type benchResults struct {
	sent      atomic.Int64
	admitted  atomic.Int64
	blocked   atomic.Int64
	failed    atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
}

func runBench(cmd *cobra.Command, args []string) error {
	fmt.Println("Warden Bench")
	fmt.Println("============")
	fmt.Printf("Target:      %s\n", benchFlags.target)
	fmt.Printf("Duration:    %s\n", benchFlags.duration)
	fmt.Printf("Rate:        %d req/s\n", benchFlags.rate)
	fmt.Printf("Concurrency: %d\n", benchFlags.concurrency)
	fmt.Printf("Algorithm:   %s\n", benchFlags.algorithm)
	fmt.Println()

	body, err := json.Marshal(map[string]any{
		"identity":  benchFlags.identity,
		"algorithm": benchFlags.algorithm,
		"cost":      benchFlags.cost,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), benchFlags.duration)
	defer cancel()

	// A shared limiter paces all workers at the aggregate request rate.
	pacer := rate.NewLimiter(rate.Limit(benchFlags.rate), benchFlags.rate)
	client := &http.Client{Timeout: 10 * time.Second}
	url := benchFlags.target + "/v1/check"

	results := &benchResults{}
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < benchFlags.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := pacer.Wait(ctx); err != nil {
					return
				}
				sendCheck(ctx, client, url, body, results)
			}
		}()
	}
	wg.Wait()

	displayBenchResults(results, time.Since(start))
	return nil
}

// sendCheck issues one admission check and records the outcome.
func sendCheck(ctx context.Context, client *http.Client, url string, body []byte, results *benchResults) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		results.failed.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	reqStart := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(reqStart)

	results.sent.Add(1)
	if err != nil {
		if ctx.Err() == nil {
			results.failed.Add(1)
		}
		return
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		results.admitted.Add(1)
	case http.StatusTooManyRequests:
		results.blocked.Add(1)
	default:
		results.failed.Add(1)
	}

	results.mu.Lock()
	results.latencies = append(results.latencies, latency)
	results.mu.Unlock()
}

func displayBenchResults(results *benchResults, elapsed time.Duration) {
	sent := results.sent.Load()

	fmt.Println("Results")
	fmt.Println("-------")
	fmt.Printf("Elapsed:    %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Sent:       %d (%.1f req/s)\n", sent, float64(sent)/elapsed.Seconds())
	fmt.Printf("Admitted:   %d\n", results.admitted.Load())
	fmt.Printf("Blocked:    %d\n", results.blocked.Load())
	fmt.Printf("Failed:     %d\n", results.failed.Load())

	results.mu.Lock()
	latencies := append([]time.Duration(nil), results.latencies...)
	results.mu.Unlock()

	if len(latencies) == 0 {
		return
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Println()
	fmt.Println("Latency")
	fmt.Println("-------")
	fmt.Printf("p50: %s\n", percentile(latencies, 0.50).Round(time.Microsecond))
	fmt.Printf("p95: %s\n", percentile(latencies, 0.95).Round(time.Microsecond))
	fmt.Printf("p99: %s\n", percentile(latencies, 0.99).Round(time.Microsecond))
	fmt.Printf("max: %s\n", latencies[len(latencies)-1].Round(time.Microsecond))
}

// percentile returns the p-th percentile of sorted latencies.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
