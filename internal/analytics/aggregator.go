package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nsriram/docsearch/pkg/kafka"
)

const latencyWindow = 10000

// DefaultTopN is the length of the top-query lists in Stats.
const DefaultTopN = 10

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	Rebuilds          int64        `json:"rebuilds"`
	FailedRebuilds    int64        `json:"failed_rebuilds"`
	LastGeneration    uint64       `json:"last_generation"`
	LastDocuments     int          `json:"last_documents"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds events into running statistics. Latency percentiles are
// computed over the most recent searches only.
type Aggregator struct {
	mu                sync.RWMutex
	stats             AggregatedStats
	latencies         []int64
	latencyNext       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
	now               func() time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Record folds one event in.
func (a *Aggregator) Record(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case e.Type == EventSearch && e.Search != nil:
		a.recordSearch(*e.Search)
	case e.Type == EventRebuild && e.Rebuild != nil:
		a.recordRebuild(*e.Rebuild)
	default:
		a.logger.Warn("ignoring malformed analytics event", "type", e.Type)
	}
}

// PublishEvents lets the aggregator stand in for Kafka when the service
// runs without a broker.
func (a *Aggregator) PublishEvents(_ context.Context, events []Event) error {
	for _, e := range events {
		a.Record(e)
	}
	return nil
}

// HandleMessage is the Kafka consumer callback. Undecodable messages are
// logged and acknowledged so they do not block the partition.
func (a *Aggregator) HandleMessage(_ context.Context, _ []byte, value []byte) error {
	event, err := kafka.DecodeJSON[Event](value)
	if err != nil {
		a.logger.Error("failed to decode analytics event", "error", err)
		return nil
	}
	a.Record(event)
	return nil
}

// Consume runs consumer with the aggregator as its handler until ctx ends.
func (a *Aggregator) Consume(ctx context.Context, consumer *kafka.Consumer) error {
	a.logger.Info("analytics aggregator consuming")
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("consuming analytics events: %w", err)
	}
	return nil
}

func (a *Aggregator) recordSearch(e SearchEvent) {
	a.stats.TotalSearches++
	if e.CacheHit {
		a.stats.CacheHits++
	} else {
		a.stats.CacheMisses++
	}
	query := strings.ToLower(strings.TrimSpace(e.Query))
	a.queryCounts[query]++
	if e.TotalHits == 0 {
		a.stats.ZeroResultCount++
		a.zeroResultQueries[query]++
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = e.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % latencyWindow
	}
}

func (a *Aggregator) recordRebuild(e RebuildEvent) {
	a.stats.Rebuilds++
	if !e.Success {
		a.stats.FailedRebuilds++
		return
	}
	a.stats.LastGeneration = e.Generation
	a.stats.LastDocuments = e.Documents
}

// Stats returns a consistent copy of the current statistics.
func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(DefaultTopN)
}

// StatsTop is Stats with the top-query lists cut to n entries.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.stats
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, n)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then query ascending.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(x, y QueryCount) int {
		if x.Count != y.Count {
			if x.Count > y.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(x.Query, y.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
