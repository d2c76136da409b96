// Package handler serves the search HTTP API.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strconv"
	"time"

	"github.com/nsriram/docsearch/internal/analytics"
	"github.com/nsriram/docsearch/internal/indexer/index"
	"github.com/nsriram/docsearch/internal/ingestion"
	"github.com/nsriram/docsearch/internal/searcher/cache"
	"github.com/nsriram/docsearch/internal/searcher/executor"
	"github.com/nsriram/docsearch/internal/searcher/parser"
	apperrors "github.com/nsriram/docsearch/pkg/errors"
	"github.com/nsriram/docsearch/pkg/logger"
	"github.com/nsriram/docsearch/pkg/metrics"
	"github.com/nsriram/docsearch/pkg/tracing"
)

// CacheHeader reports how a search was served: hit, miss or disabled.
const CacheHeader = "X-Cache"

// Engine is the index surface the handler needs; *indexer.Engine
// implements it.
type Engine interface {
	Snapshot() *index.Snapshot
	Executor() *executor.Executor
	Rebuild(ctx context.Context, docs []map[string]string) (*index.Snapshot, error)
}

// Loader produces the full corpus for a rebuild.
type Loader func(ctx context.Context) ([]ingestion.Document, error)

type Options struct {
	DefaultLimit  int
	MaxResults    int
	DefaultBoosts map[string]float64
}

type Handler struct {
	engine    Engine
	loader    Loader
	cache     *cache.QueryCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	opts      Options
	logger    *slog.Logger
}

// New wires a handler. loader, queryCache, collector and m may be nil.
func New(engine Engine, loader Loader, queryCache *cache.QueryCache, collector *analytics.Collector, m *metrics.Metrics, opts Options) *Handler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 5
	}
	if opts.MaxResults < opts.DefaultLimit {
		opts.MaxResults = opts.DefaultLimit
	}
	return &Handler{
		engine:    engine,
		loader:    loader,
		cache:     queryCache,
		collector: collector,
		metrics:   m,
		opts:      opts,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search serves GET /api/v1/search?q=&limit=&boost=field:weight,...
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.Start(r.Context(), "search")
	log := logger.FromContext(ctx)
	defer func() {
		span.End()
		span.Log(ctx, log)
	}()

	params := r.URL.Query()
	if !params.Has("q") {
		h.countQuery("invalid")
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	q := parser.Query{Text: params.Get("q"), Limit: h.opts.DefaultLimit}

	if limitStr := params.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			h.countQuery("invalid")
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		q.Limit = min(limit, h.opts.MaxResults)
	}

	q.Boosts = maps.Clone(h.opts.DefaultBoosts)
	if boostStr := params.Get("boost"); boostStr != "" {
		overrides, err := parser.ParseBoosts(boostStr)
		if err != nil {
			h.countQuery("invalid")
			h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
			return
		}
		if q.Boosts == nil {
			q.Boosts = make(map[string]float64, len(overrides))
		}
		maps.Copy(q.Boosts, overrides)
	}

	snap := h.engine.Snapshot()
	if snap == nil {
		h.countQuery("error")
		h.writeError(w, http.StatusServiceUnavailable, apperrors.ErrIndexNotBuilt.Error())
		return
	}

	compute := func(ctx context.Context) (*executor.SearchResult, error) {
		return h.engine.Executor().Execute(ctx, snap, q)
	}
	var (
		result   *executor.SearchResult
		cacheHit bool
		err      error
	)
	cacheStatus := "disabled"
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, snap.Generation(), q, compute)
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	} else {
		result, err = compute(ctx)
	}
	span.SetAttr("cache", cacheStatus)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status == http.StatusBadRequest {
			h.countQuery("invalid")
			h.writeError(w, status, err.Error())
			return
		}
		h.countQuery("error")
		log.Error("search execution failed", "query", q.Text, "error", err)
		h.writeError(w, status, "search failed")
		return
	}

	latency := time.Since(start)
	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
		h.metrics.SearchResultsCount.Observe(float64(len(result.Results)))
	}
	if result.TotalHits == 0 {
		h.countQuery("zero_result")
	} else {
		h.countQuery("hit")
	}

	log.Info("search completed",
		"query", q.Text,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache", cacheStatus,
		"generation", result.Generation,
		"latency_ms", latency.Milliseconds(),
	)
	if h.collector != nil {
		h.collector.Track(analytics.NewSearchEvent(analytics.SearchEvent{
			Query:      q.Text,
			Terms:      len(result.Terms),
			TotalHits:  result.TotalHits,
			Returned:   len(result.Results),
			LatencyMs:  latency.Milliseconds(),
			CacheHit:   cacheHit,
			Generation: result.Generation,
			Origin:     "http",
			RequestID:  logger.RequestID(ctx),
			Timestamp:  time.Now().UTC(),
		}))
	}
	w.Header().Set(CacheHeader, cacheStatus)
	h.writeJSON(w, http.StatusOK, result)
}

// Reload loads every source and rebuilds the index. The service calls it at
// startup and from the rebuild endpoint.
func (h *Handler) Reload(ctx context.Context) (*index.Snapshot, error) {
	if h.loader == nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusConflict, "no corpus sources configured")
	}
	start := time.Now()
	ctx, span := tracing.Start(ctx, "rebuild")
	defer func() {
		span.End()
		span.Log(ctx, h.logger)
	}()

	loadCtx, loadSpan := tracing.Start(ctx, "load")
	docs, err := h.loader(loadCtx)
	loadSpan.SetAttr("documents", len(docs))
	loadSpan.End()

	var snap *index.Snapshot
	if err == nil {
		buildCtx, buildSpan := tracing.Start(ctx, "build")
		snap, err = h.engine.Rebuild(buildCtx, docs)
		buildSpan.End()
	}

	event := analytics.RebuildEvent{
		Documents:  len(docs),
		DurationMs: time.Since(start).Milliseconds(),
		Success:    err == nil,
		Timestamp:  time.Now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	} else {
		event.Generation = snap.Generation()
	}
	if h.collector != nil {
		h.collector.Track(analytics.NewRebuildEvent(event))
	}
	return snap, err
}

// Rebuild serves POST /api/v1/index/rebuild.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Reload(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("rebuild failed", "error", err)
		status := apperrors.HTTPStatusCode(err)
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			h.writeError(w, status, appErr.Message)
			return
		}
		h.writeError(w, status, fmt.Sprintf("rebuild failed: %v", err))
		return
	}
	h.writeJSON(w, http.StatusOK, snap.Stats())
}

type indexStats struct {
	State string `json:"state"`
	*index.Stats
}

// IndexStats serves GET /api/v1/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	if snap == nil {
		h.writeJSON(w, http.StatusOK, indexStats{State: "empty"})
		return
	}
	st := snap.Stats()
	h.writeJSON(w, http.StatusOK, indexStats{State: "built", Stats: &st})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) countQuery(resultType string) {
	if h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}

// writeJSON encodes before writing the header so an encoding failure is
// reported as a 500 instead of a truncated 200.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"failed to encode response"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
