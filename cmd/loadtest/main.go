package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nsriram/docsearch/internal/searcher/handler"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Limit       int
	Boost       string
	Queries     []string
}

type Stats struct {
	total     atomic.Int64
	success   atomic.Int64
	failures  atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies: make([]time.Duration, 0, 100000),
		codes:     make(map[int]int64),
	}
}

func (s *Stats) Record(d time.Duration, status int, cache string, err error) {
	s.total.Add(1)
	if err != nil {
		s.failures.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.failures.Add(1)
	}
	if cache == "hit" {
		s.cacheHits.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[status]++
	s.mu.Unlock()
}

var defaultQueries = []string{
	"demo",
	"getting started",
	"installation",
	"configuration options",
	"authentication",
	"deploy to production",
	"api reference",
	"troubleshooting",
	"environment variables",
	"search index",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	limit := flag.Int("limit", 5, "results per query")
	boost := flag.String("boost", "", "boost parameter sent with every query, e.g. content:1,filename:2")
	queries := flag.String("queries", "", "comma-separated queries (built-in documentation queries when empty)")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimSuffix(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Limit:       *limit,
		Boost:       *boost,
		Queries:     defaultQueries,
	}
	if *queries != "" {
		cfg.Queries = strings.Split(*queries, ",")
	}

	fmt.Println("=== docsearch load test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := run(cfg)
	if !report(os.Stdout, stats, cfg.Duration) {
		fmt.Println("WARNING: no requests completed. Is the service running?")
		os.Exit(1)
	}
}

func searchURL(cfg Config, query string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("limit", fmt.Sprint(cfg.Limit))
	if cfg.Boost != "" {
		v.Set("boost", cfg.Boost)
	}
	return cfg.BaseURL + "/api/v1/search?" + v.Encode()
}

func run(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var g errgroup.Group
	for w := range cfg.Concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				query := cfg.Queries[i%len(cfg.Queries)]
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL(cfg, query), nil)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.Record(elapsed, 0, "", err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.Record(elapsed, resp.StatusCode, resp.Header.Get(handler.CacheHeader), nil)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "load test aborted: %v\n", err)
	}
	return stats
}

// report prints the summary and returns false when nothing completed.
func report(out io.Writer, stats *Stats, duration time.Duration) bool {
	total := stats.total.Load()
	failures := stats.failures.Load()

	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "Total Requests:  %d\n", total)
	fmt.Fprintf(out, "Successful:      %d\n", stats.success.Load())
	fmt.Fprintf(out, "Errors:          %d\n", failures)
	fmt.Fprintf(out, "Cache Hits:      %d\n", stats.cacheHits.Load())
	if total == 0 {
		return false
	}
	fmt.Fprintf(out, "Error Rate:      %.2f%%\n", float64(failures)/float64(total)*100)
	fmt.Fprintf(out, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())

	stats.mu.Lock()
	latencies := slices.Clone(stats.latencies)
	codes := make(map[int]int64, len(stats.codes))
	for code, n := range stats.codes {
		codes[code] = n
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "=== Latency ===")
		fmt.Fprintf(out, "Min:    %s\n", latencies[0])
		fmt.Fprintf(out, "Avg:    %s\n", sum/time.Duration(len(latencies)))
		fmt.Fprintf(out, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(out, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(out, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(out, "Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Status Codes ===")
	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	slices.Sort(keys)
	for _, code := range keys {
		fmt.Fprintf(out, "  %d: %d\n", code, codes[code])
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
