package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/nsriram/docsearch/internal/analytics"
	"github.com/nsriram/docsearch/internal/indexer"
	"github.com/nsriram/docsearch/internal/indexer/corpus"
	"github.com/nsriram/docsearch/internal/ingestion"
	"github.com/nsriram/docsearch/internal/searcher/cache"
	"github.com/nsriram/docsearch/internal/searcher/executor"
	"github.com/nsriram/docsearch/pkg/metrics"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

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
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

var testDocs = []ingestion.Document{
	{"content": "alpha beta", "filename": "a.md"},
	{"content": "beta beta gamma", "filename": "b.md"},
}

type fixture struct {
	h       *Handler
	mux     *http.ServeMux
	engine  *indexer.Engine
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, loader Loader, withCache bool) *fixture {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	engine := indexer.NewEngine(indexer.Config{
		Schema: corpus.MustSchema([]string{"content", "filename"}, []string{"section"}),
	}, m)
	var qc *cache.QueryCache
	if withCache {
		qc = cache.New(&memStore{data: make(map[string][]byte)}, time.Minute, m)
	}
	h := New(engine, loader, qc, nil, m, Options{
		DefaultLimit:  5,
		MaxResults:    10,
		DefaultBoosts: map[string]float64{"content": 1, "filename": 2},
	})
	mux := http.NewServeMux()
	h.Register(mux)
	return &fixture{h: h, mux: mux, engine: engine, metrics: m}
}

func staticLoader(docs []ingestion.Document) Loader {
	return func(context.Context) ([]ingestion.Document, error) { return docs, nil }
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestSearchBeforeRebuild(t *testing.T) {
	f := newFixture(t, staticLoader(testDocs), false)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=beta")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t, staticLoader(testDocs), false)
	if _, err := f.h.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/search?q=beta")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	res := decode[executor.SearchResult](t, rec)
	if res.TotalHits != 2 || len(res.Results) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Results[0].ID != 1 {
		t.Errorf("top hit = %d, want 1 (higher term frequency)", res.Results[0].ID)
	}
	if res.Generation != 1 {
		t.Errorf("generation = %d", res.Generation)
	}
	if got := testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("hit")); got != 1 {
		t.Errorf("hit counter = %v", got)
	}
}

func TestSearchLimitAndBoost(t *testing.T) {
	f := newFixture(t, staticLoader(testDocs), false)
	if _, err := f.h.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/search?q=beta&limit=1")
	res := decode[executor.SearchResult](t, rec)
	if len(res.Results) != 1 || res.TotalHits != 2 {
		t.Fatalf("limit=1: %+v", res)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/search?q=a&boost=content:0")
	res = decode[executor.SearchResult](t, rec)
	if rec.Code != http.StatusOK || res.TotalHits != 1 || res.Results[0].ID != 0 {
		t.Fatalf("filename-only search: code=%d %+v", rec.Code, res)
	}
}

func TestSearchHugeBoost(t *testing.T) {
	f := newFixture(t, staticLoader(testDocs), false)
	if _, err := f.h.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/search?q=beta&boost=content:1e308")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	res := decode[executor.SearchResult](t, rec)
	if len(res.Results) != 2 {
		t.Fatalf("result = %+v", res)
	}
	for _, hit := range res.Results {
		if math.IsInf(hit.Score, 0) || math.IsNaN(hit.Score) {
			t.Fatalf("hit %d: non-finite score %v", hit.ID, hit.Score)
		}
	}
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	f := newFixture(t, nil, false)
	rec := httptest.NewRecorder()
	f.h.writeJSON(rec, http.StatusOK, map[string]float64{"score": math.Inf(1)})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["error"] == "" {
		t.Fatalf("body = %v", body)
	}
}

func TestSearchBadRequests(t *testing.T) {
	f := newFixture(t, staticLoader(testDocs), false)
	if _, err := f.h.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, target := range []string{
		"/api/v1/search",
		"/api/v1/search?q=beta&limit=0",
		"/api/v1/search?q=beta&limit=x",
		"/api/v1/search?q=beta&boost=nofield:2",
		"/api/v1/search?q=beta&boost=content:-1",
		"/api/v1/search?q=beta&boost=content",
	} {
		rec := f.do(t, http.MethodGet, target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
	if got := testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("invalid")); got != 6 {
		t.Errorf("invalid counter = %v, want 6", got)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	f := newFixture(t, staticLoader(testDocs), false)
	if _, err := f.h.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=")
	res := decode[executor.SearchResult](t, rec)
	if rec.Code != http.StatusOK || res.TotalHits != 0 || res.Results == nil {
		t.Fatalf("code=%d %+v", rec.Code, res)
	}
}

func TestSearchCached(t *testing.T) {
	f := newFixture(t, staticLoader(testDocs), true)
	if _, err := f.h.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/search?q=beta"); rec.Header().Get(CacheHeader) != "miss" {
		t.Fatalf("first search cache header = %q", rec.Header().Get(CacheHeader))
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/search?q=beta"); rec.Header().Get(CacheHeader) != "hit" {
		t.Fatalf("second search cache header = %q", rec.Header().Get(CacheHeader))
	}

	stats := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/v1/cache/stats"))
	if stats["hits"] != float64(1) || stats["misses"] != float64(1) {
		t.Fatalf("cache stats = %v", stats)
	}

	inv := decode[map[string]any](t, f.do(t, http.MethodPost, "/api/v1/cache/invalidate"))
	if inv["keys_deleted"] != float64(1) {
		t.Fatalf("invalidate = %v", inv)
	}
}

func TestCacheDisabled(t *testing.T) {
	f := newFixture(t, staticLoader(testDocs), false)
	if rec := f.do(t, http.MethodPost, "/api/v1/cache/invalidate"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	stats := decode[map[string]string](t, f.do(t, http.MethodGet, "/api/v1/cache/stats"))
	if stats["status"] != "disabled" {
		t.Fatalf("stats = %v", stats)
	}
}

func TestRebuildEndpoint(t *testing.T) {
	docs := testDocs
	f := newFixture(t, func(context.Context) ([]ingestion.Document, error) { return docs, nil }, false)

	stats := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/v1/index/stats"))
	if stats["state"] != "empty" {
		t.Fatalf("stats before rebuild = %v", stats)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/index/rebuild")
	if rec.Code != http.StatusOK {
		t.Fatalf("rebuild status = %d body=%s", rec.Code, rec.Body)
	}

	docs = append(docs, ingestion.Document{"content": "delta", "filename": "c.md"})
	f.do(t, http.MethodPost, "/api/v1/index/rebuild")

	stats = decode[map[string]any](t, f.do(t, http.MethodGet, "/api/v1/index/stats"))
	if stats["state"] != "built" || stats["generation"] != float64(2) || stats["documents"] != float64(3) {
		t.Fatalf("stats after rebuild = %v", stats)
	}
}

func TestRebuildFailureKeepsSnapshot(t *testing.T) {
	fail := false
	f := newFixture(t, func(context.Context) ([]ingestion.Document, error) {
		if fail {
			return nil, errors.New("source down")
		}
		return testDocs, nil
	}, false)
	if _, err := f.h.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	fail = true
	if rec := f.do(t, http.MethodPost, "/api/v1/index/rebuild"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.engine.Snapshot().Generation() != 1 {
		t.Fatal("failed reload replaced the snapshot")
	}

	bad := []ingestion.Document{{"content": "x", "author": "nobody"}}
	f2 := newFixture(t, staticLoader(bad), false)
	if rec := f2.do(t, http.MethodPost, "/api/v1/index/rebuild"); rec.Code != http.StatusBadRequest {
		t.Fatalf("schema violation status = %d", rec.Code)
	}
}

func TestRebuildWithoutLoader(t *testing.T) {
	f := newFixture(t, nil, false)
	if rec := f.do(t, http.MethodPost, "/api/v1/index/rebuild"); rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestSearchTracksAnalytics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	engine := indexer.NewEngine(indexer.Config{
		Schema: corpus.MustSchema([]string{"content", "filename"}, nil),
	}, m)
	agg := analytics.NewAggregator()
	collector := analytics.NewCollector(agg, analytics.CollectorConfig{FlushInterval: time.Hour})
	collector.Start(context.Background())

	h := New(engine, staticLoader(testDocs), nil, collector, m, Options{DefaultLimit: 5, MaxResults: 10})
	mux := http.NewServeMux()
	h.Register(mux)
	if _, err := h.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"beta", "zeta"} {
		mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/search?q="+q, nil))
	}
	collector.Close()

	stats := agg.Stats()
	if stats.TotalSearches != 2 || stats.ZeroResultCount != 1 {
		t.Fatalf("search stats = %+v", stats)
	}
	if stats.Rebuilds != 1 || stats.LastGeneration != 1 || stats.LastDocuments != 2 {
		t.Fatalf("rebuild stats = %+v", stats)
	}
}
