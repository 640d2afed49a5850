package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/proto"
)

type Config struct {
	Addr        string
	Concurrency int
	Duration    time.Duration
	Timeout     time.Duration
	Num         int
	Pages       int
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	emptyCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	cacheStatus   map[string]*atomic.Int64
	errorKinds    map[string]*atomic.Int64
	countsMu      sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		cacheStatus: make(map[string]*atomic.Int64),
		errorKinds:  make(map[string]*atomic.Int64),
	}
}

func (s *Stats) bump(m map[string]*atomic.Int64, key string) {
	s.countsMu.Lock()
	if _, ok := m[key]; !ok {
		m[key] = &atomic.Int64{}
	}
	m[key].Add(1)
	s.countsMu.Unlock()
}

func (s *Stats) RecordRequest(duration time.Duration, res *engine.SearchResult, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		s.bump(s.errorKinds, errorKind(err))
		return
	}
	s.successCount.Add(1)
	if len(res.Rows) == 0 {
		s.emptyCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.bump(s.cacheStatus, res.CacheStatus)
}

// errorKind buckets a failure by the sentinel prefix the server put in front
// of its message, or as a transport failure.
func errorKind(err error) string {
	var remote *grpc.RemoteError
	if !errors.As(err, &remote) {
		if errors.Is(err, context.DeadlineExceeded) {
			return "client timeout"
		}
		return "transport"
	}
	msg := remote.Message
	if i := strings.Index(msg, ":"); i > 0 {
		msg = msg[:i]
	}
	return msg
}

func main() {
	addr := flag.String("addr", "localhost:9400", "RPC address of a searcher")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	num := flag.Int("num", 10, "results per page")
	pages := flag.Int("pages", 1, "pages walked per query")
	flag.Parse()

	queries := []string{
		"distributed systems",
		"search engine",
		"\"inverted index\"",
		"red kite -bird",
		"site:example.com ranking",
		"query processing",
		"cache optimization",
		"golang OR rust",
		"shard routing",
		"circuit breaker",
		"load balancing",
		"full text search",
		"lang:en posting lists",
		"token stemming",
		"document ingestion",
	}

	cfg := Config{
		Addr:        *addr,
		Concurrency: *concurrency,
		Duration:    *duration,
		Timeout:     *timeout,
		Num:         *num,
		Pages:       max(1, *pages),
		Queries:     queries,
	}

	fmt.Println("=== Search Query Engine Load Test ===")
	fmt.Printf("Target:      %s (%s)\n", cfg.Addr, proto.MethodSearch)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique, %d page(s) of %d\n", len(cfg.Queries), cfg.Pages, cfg.Num)
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			// One connection per worker; Client.Call serialises on its conn.
			client := grpc.NewClient(cfg.Addr)
			defer client.Close()
			queryIdx := workerID

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				for page := 0; page < cfg.Pages; page++ {
					req := engine.Request{
						Query: query,
						Limit: page * cfg.Num,
						Num:   cfg.Num,
					}
					var res engine.SearchResult
					reqCtx, reqCancel := context.WithTimeout(ctx, cfg.Timeout)
					start := time.Now()
					err := client.Call(reqCtx, proto.MethodSearch, req, &res)
					d := time.Since(start)
					reqCancel()
					if ctx.Err() != nil {
						return
					}
					stats.RecordRequest(d, &res, err)
					if err != nil || len(res.Rows) < cfg.Num {
						break
					}
				}
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func printCounts(title string, mu *sync.Mutex, m map[string]*atomic.Int64) {
	mu.Lock()
	defer mu.Unlock()
	if len(m) == 0 {
		return
	}
	fmt.Println()
	fmt.Printf("=== %s ===\n", title)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-24s %d\n", k+":", m[k].Load())
	}
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	failed := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Empty Pages:     %d\n", stats.emptyCount.Load())
	fmt.Printf("Errors:          %d\n", failed)

	if total > 0 {
		errorRate := float64(failed) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	printCounts("Cache Status", &stats.countsMu, stats.cacheStatus)
	printCounts("Errors", &stats.countsMu, stats.errorKinds)

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the searcher running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
