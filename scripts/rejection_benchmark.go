//go:build ignore
// +build ignore

// Rejection Memory Benchmark Tool
// Hammers the rejection store with concurrent rejections for a small set of
// recipients, then verifies no increment was lost and reports throughput.
//
// Usage:
//   go run scripts/rejection_benchmark.go \
//     --backend=redis --redis-url=redis://localhost:6379/0 \
//     --recipients=50 --rejections=40 --workers=32
//
// Or against the local directory backend:
//   go run scripts/rejection_benchmark.go --backend=local --dir=/tmp/rejections

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-guard/internal/rejection"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

type BenchmarkConfig struct {
	Backend  string
	RedisURL string
	Dir      string

	Recipients    int // distinct recipients
	Rejections    int // rejections per recipient
	Workers       int
	RunTag        string
	ClientTimeout time.Duration
}

func DefaultBenchmarkConfig() *BenchmarkConfig {
	return &BenchmarkConfig{
		Backend:       "redis",
		RedisURL:      "redis://localhost:6379/0",
		Dir:           os.TempDir() + "/rejection-benchmark",
		Recipients:    50,
		Rejections:    40,
		Workers:       runtime.NumCPU() * 4,
		RunTag:        fmt.Sprintf("bench%d", time.Now().Unix()),
		ClientTimeout: 2 * time.Second,
	}
}

// =============================================================================
// METRICS
// =============================================================================

type BenchmarkMetrics struct {
	mu        sync.Mutex
	latencies []time.Duration

	Written  int64
	Dropped  int64
	Elapsed  time.Duration
	Lost     int
	Mismatch []string
}

func (m *BenchmarkMetrics) Record(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func (m *BenchmarkMetrics) Percentile(p float64) time.Duration {
	if len(m.latencies) == 0 {
		return 0
	}
	sort.Slice(m.latencies, func(i, j int) bool { return m.latencies[i] < m.latencies[j] })
	return m.latencies[int(float64(len(m.latencies)-1)*p)]
}

// =============================================================================
// RUNNER
// =============================================================================

type job struct {
	email string
	seq   int
}

func recipient(cfg *BenchmarkConfig, i int) string {
	return fmt.Sprintf("%s-%04d@benchmark.invalid", cfg.RunTag, i)
}

func buildStore(cfg *BenchmarkConfig) (*rejection.Store, func(), error) {
	switch cfg.Backend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return rejection.NewStore(rejection.NewRedisBackend(client, cfg.ClientTimeout)), func() { client.Close() }, nil
	case "local":
		fb, err := rejection.NewFileBackend(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return rejection.NewStore(fb), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func run(cfg *BenchmarkConfig) (*BenchmarkMetrics, error) {
	store, closeFn, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	ctx := context.Background()
	metrics := &BenchmarkMetrics{}
	jobs := make(chan job, cfg.Workers*2)

	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				t0 := time.Now()
				rec, err := store.RecordRejection(ctx, rejection.RejectionInput{
					RecipientEmail: j.email,
					Tag:            "benchmark",
					Subject:        fmt.Sprintf("subject %d", j.seq),
					Body:           fmt.Sprintf("body %d", j.seq),
				})
				metrics.Record(time.Since(t0))
				if err != nil || rec == nil {
					atomic.AddInt64(&metrics.Dropped, 1)
					continue
				}
				atomic.AddInt64(&metrics.Written, 1)
			}
		}()
	}

	// Interleave recipients so every recipient sees concurrent writers.
	for seq := 0; seq < cfg.Rejections; seq++ {
		for i := 0; i < cfg.Recipients; i++ {
			jobs <- job{email: recipient(cfg, i), seq: seq}
		}
	}
	close(jobs)
	wg.Wait()
	metrics.Elapsed = time.Since(start)

	for i := 0; i < cfg.Recipients; i++ {
		rec, ok := store.GetRejectionHistory(ctx, recipient(cfg, i))
		if !ok || rec.RejectionCount != cfg.Rejections {
			got := 0
			if ok {
				got = rec.RejectionCount
			}
			metrics.Lost += cfg.Rejections - got
			metrics.Mismatch = append(metrics.Mismatch, fmt.Sprintf("%s: %d/%d", recipient(cfg, i), got, cfg.Rejections))
		}
	}
	return metrics, nil
}

func printResults(cfg *BenchmarkConfig, m *BenchmarkMetrics) {
	line := strings.Repeat("=", 80)
	fmt.Println(line)
	fmt.Println("                    REJECTION MEMORY BENCHMARK")
	fmt.Println(line)
	fmt.Printf("  Backend:            %s\n", cfg.Backend)
	fmt.Printf("  Recipients:         %d\n", cfg.Recipients)
	fmt.Printf("  Rejections each:    %d\n", cfg.Rejections)
	fmt.Printf("  Workers:            %d\n", cfg.Workers)
	fmt.Println()
	fmt.Printf("  Written:            %d\n", m.Written)
	fmt.Printf("  Dropped:            %d\n", m.Dropped)
	fmt.Printf("  Elapsed:            %v\n", m.Elapsed.Round(time.Millisecond))
	if m.Elapsed > 0 {
		fmt.Printf("  Writes/sec:         %.1f\n", float64(m.Written)/m.Elapsed.Seconds())
	}
	fmt.Printf("  Latency P50:        %v\n", m.Percentile(0.50))
	fmt.Printf("  Latency P95:        %v\n", m.Percentile(0.95))
	fmt.Printf("  Latency P99:        %v\n", m.Percentile(0.99))
	fmt.Println(line)

	if m.Lost == 0 && m.Dropped == 0 {
		fmt.Println("  RESULT: PASS - every rejection counted exactly once")
	} else {
		fmt.Printf("  RESULT: FAIL - %d increments lost, %d writes dropped\n", m.Lost, m.Dropped)
		for _, s := range m.Mismatch {
			fmt.Println("    ", s)
		}
	}
	fmt.Println(line)
}

func main() {
	cfg := DefaultBenchmarkConfig()

	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "Backend to exercise: redis or local")
	flag.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL")
	flag.StringVar(&cfg.Dir, "dir", cfg.Dir, "Directory for the local backend")
	flag.IntVar(&cfg.Recipients, "recipients", cfg.Recipients, "Distinct recipients")
	flag.IntVar(&cfg.Rejections, "rejections", cfg.Rejections, "Rejections per recipient")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent writers")
	flag.StringVar(&cfg.RunTag, "run-tag", cfg.RunTag, "Prefix for synthetic recipient addresses")
	flag.Parse()

	m, err := run(cfg)
	if err != nil {
		log.Fatalf("Benchmark failed: %v", err)
	}
	printResults(cfg, m)
	if m.Lost > 0 || m.Dropped > 0 {
		os.Exit(1)
	}
}
