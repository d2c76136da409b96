package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nsriram/docsearch/internal/searcher/executor"
	"github.com/nsriram/docsearch/internal/searcher/parser"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestGetOrCompute(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	q := parser.Query{Text: "beta", Limit: 5}
	calls := 0
	compute := func(context.Context) (*executor.SearchResult, error) {
		calls++
		return &executor.SearchResult{Query: "beta", TotalHits: 2, Generation: 1}, nil
	}

	res, hit, err := c.GetOrCompute(context.Background(), 1, q, compute)
	if err != nil || hit || res.TotalHits != 2 {
		t.Fatalf("first call: res=%+v hit=%v err=%v", res, hit, err)
	}
	res, hit, err = c.GetOrCompute(context.Background(), 1, q, compute)
	if err != nil || !hit || res.TotalHits != 2 {
		t.Fatalf("second call: res=%+v hit=%v err=%v", res, hit, err)
	}
	if calls != 1 {
		t.Fatalf("compute ran %d times", calls)
	}

	if _, hit, _ := c.GetOrCompute(context.Background(), 2, q, compute); hit {
		t.Fatal("new generation must miss")
	}
	if hits, misses := c.Stats(); hits != 1 || misses != 2 {
		t.Fatalf("stats = %d/%d", hits, misses)
	}
}

func TestCancelledCallerDoesNotFailWaiters(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	q := parser.Query{Text: "shared", Limit: 2}
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) (*executor.SearchResult, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &executor.SearchResult{Query: "shared", TotalHits: 1}, nil
	}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(first, 1, q, compute)
		firstErr <- err
	}()
	<-started

	waiter := make(chan error, 1)
	go func() {
		res, _, err := c.GetOrCompute(context.Background(), 1, q, compute)
		if err == nil && res.TotalHits != 1 {
			err = errors.New("unexpected result")
		}
		waiter <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(release)

	if err := <-waiter; err != nil {
		t.Fatalf("waiter err = %v", err)
	}
	if err := <-firstErr; err != nil {
		t.Fatalf("first caller err = %v", err)
	}
}

func TestErrorsNotCached(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	q := parser.Query{Text: "x", Limit: 1}
	boom := errors.New("boom")
	if _, _, err := c.GetOrCompute(context.Background(), 1, q, func(context.Context) (*executor.SearchResult, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	_, hit, err := c.GetOrCompute(context.Background(), 1, q, func(context.Context) (*executor.SearchResult, error) {
		return &executor.SearchResult{}, nil
	})
	if err != nil || hit {
		t.Fatalf("hit = %v, err = %v", hit, err)
	}
}

func TestSingleflightCollapsesMisses(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	q := parser.Query{Text: "slow", Limit: 3}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.GetOrCompute(context.Background(), 1, q, func(context.Context) (*executor.SearchResult, error) {
				calls.Add(1)
				<-release
				return &executor.SearchResult{}, nil
			})
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := calls.Load(); n < 1 || n > 10 {
		t.Fatalf("compute calls = %d", n)
	}
}

func TestBuildKey(t *testing.T) {
	base := parser.Query{Text: "Beta", Boosts: map[string]float64{"content": 1, "filename": 2}, Limit: 5}
	same := parser.Query{Text: "Beta", Boosts: map[string]float64{"filename": 2, "content": 1}, Limit: 5}
	if BuildKey(1, base) != BuildKey(1, same) {
		t.Fatal("boost order must not change the key")
	}
	variants := []struct {
		gen uint64
		q   parser.Query
	}{
		{2, base},
		{1, parser.Query{Text: "beta", Boosts: base.Boosts, Limit: 5}},
		{1, parser.Query{Text: "Beta", Boosts: map[string]float64{"content": 1}, Limit: 5}},
		{1, parser.Query{Text: "Beta", Boosts: base.Boosts, Limit: 6}},
	}
	for _, v := range variants {
		if BuildKey(v.gen, v.q) == BuildKey(1, base) {
			t.Errorf("key collision for %+v at generation %d", v.q, v.gen)
		}
	}
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	store.data["unrelated"] = []byte("x")
	c := New(store, time.Minute, nil)
	for i := 0; i < 3; i++ {
		q := parser.Query{Text: "q", Limit: i + 1}
		c.GetOrCompute(context.Background(), 1, q, func(context.Context) (*executor.SearchResult, error) {
			return &executor.SearchResult{}, nil
		})
	}
	n, err := c.Invalidate(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("deleted %d, err %v", n, err)
	}
	if _, ok := store.data["unrelated"]; !ok {
		t.Fatal("invalidate removed a foreign key")
	}
}
