// Package cache memoizes search results in Redis. Keys embed the snapshot
// generation, so a rebuild makes every older entry unreachable without an
// explicit flush. Concurrent misses for one key are collapsed with
// singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nsriram/docsearch/internal/searcher/executor"
	"github.com/nsriram/docsearch/internal/searcher/parser"
	"github.com/nsriram/docsearch/pkg/metrics"
	pkgredis "github.com/nsriram/docsearch/pkg/redis"
)

const keyPrefix = "docsearch:search:"

// Store is the key-value surface the cache needs; *pkgredis.Client
// implements it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache over store. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for q at generation, or runs
// compute and caches its result. Errors are never cached. The bool reports
// a cache hit. Concurrent misses for the same key share one compute call,
// which runs detached from the caller's cancellation so one abandoned
// request does not fail the others.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation uint64,
	q parser.Query,
	compute func(ctx context.Context) (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	key := BuildKey(generation, q)
	if result, ok := c.get(ctx, key); ok {
		c.recordHit()
		return result, true, nil
	}
	c.recordMiss()

	val, err, _ := c.group.Do(key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		if result, ok := c.get(ctx, key); ok {
			return result, nil
		}
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate deletes every cached result and returns how many keys went.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey hashes everything that determines a result: generation, raw
// text, boosts in sorted order and limit. The text is kept verbatim because
// keyword matching sees it untokenized.
func BuildKey(generation uint64, q parser.Query) string {
	raw := strings.Join([]string{
		fmt.Sprintf("gen=%d", generation),
		"q=" + q.Text,
		"boosts=" + parser.FormatBoosts(q.Boosts),
		fmt.Sprintf("limit=%d", q.Limit),
	}, "\x00")
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%d:%x", keyPrefix, generation, hash[:16])
}
