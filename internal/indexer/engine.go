// Package indexer owns the index lifecycle: it builds snapshots from a full
// corpus and publishes them atomically for lock-free readers.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nsriram/docsearch/internal/indexer/corpus"
	"github.com/nsriram/docsearch/internal/indexer/index"
	"github.com/nsriram/docsearch/internal/indexer/tokenizer"
	"github.com/nsriram/docsearch/internal/searcher/executor"
	"github.com/nsriram/docsearch/internal/searcher/parser"
	apperrors "github.com/nsriram/docsearch/pkg/errors"
	"github.com/nsriram/docsearch/pkg/metrics"
)

type State int

const (
	StateEmpty State = iota
	StateBuilt
)

func (s State) String() string {
	if s == StateBuilt {
		return "built"
	}
	return "empty"
}

// Config fixes the schema and normalization for the engine's lifetime.
type Config struct {
	Schema                 *corpus.Schema
	Tokenizer              tokenizer.Config
	KeywordCaseInsensitive bool
	KeywordMatchWeight     float64
}

type Engine struct {
	cfg      Config
	tok      tokenizer.Tokenizer
	executor *executor.Executor
	metrics  *metrics.Metrics
	logger   *slog.Logger

	current atomic.Pointer[index.Snapshot]

	buildMu    sync.Mutex
	generation uint64
}

// NewEngine returns an engine in the Empty state. m may be nil.
func NewEngine(cfg Config, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:      cfg,
		tok:      tokenizer.New(cfg.Tokenizer),
		executor: executor.New(executor.Options{KeywordMatchWeight: cfg.KeywordMatchWeight}),
		metrics:  m,
		logger:   slog.Default().With("component", "indexer"),
	}
}

func (e *Engine) Schema() *corpus.Schema { return e.cfg.Schema }

// Executor returns the query executor configured for this engine, for
// callers that pin a snapshot themselves.
func (e *Engine) Executor() *executor.Executor { return e.executor }

// Rebuild ingests docs into a fresh corpus, builds a snapshot and publishes
// it. Rebuilds are serialized. On any error the previously published
// snapshot stays in place.
func (e *Engine) Rebuild(ctx context.Context, docs []map[string]string) (*index.Snapshot, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	start := time.Now()
	c := corpus.New(e.cfg.Schema)
	if _, err := c.AddAll(docs); err != nil {
		e.recordFailure(err)
		return nil, fmt.Errorf("ingesting corpus: %w", err)
	}
	snap, err := index.Build(ctx, c, index.Options{
		Tokenizer:              e.tok,
		KeywordCaseInsensitive: e.cfg.KeywordCaseInsensitive,
		Generation:             e.generation + 1,
	})
	if err != nil {
		e.recordFailure(err)
		return nil, fmt.Errorf("building snapshot: %w", err)
	}

	e.generation++
	e.current.Store(snap)
	elapsed := time.Since(start)

	if e.metrics != nil {
		e.metrics.IndexRebuildsTotal.WithLabelValues("success").Inc()
		e.metrics.IndexRebuildDuration.Observe(elapsed.Seconds())
		e.metrics.SnapshotDocuments.Set(float64(snap.DocCount()))
		e.metrics.SnapshotGeneration.Set(float64(snap.Generation()))
		for _, field := range e.cfg.Schema.TextFields() {
			e.metrics.SnapshotTerms.WithLabelValues(field).Set(float64(snap.TermCount(field)))
		}
	}
	e.logger.Info("snapshot published",
		"generation", snap.Generation(),
		"documents", snap.DocCount(),
		"duration", elapsed,
	)
	return snap, nil
}

func (e *Engine) recordFailure(err error) {
	if e.metrics != nil {
		e.metrics.IndexRebuildsTotal.WithLabelValues("failure").Inc()
	}
	e.logger.Error("rebuild failed, keeping previous snapshot", "error", err)
}

// Snapshot returns the published snapshot, or nil while Empty.
func (e *Engine) Snapshot() *index.Snapshot {
	return e.current.Load()
}

func (e *Engine) State() State {
	if e.current.Load() == nil {
		return StateEmpty
	}
	return StateBuilt
}

// Search runs a query against the snapshot published at call time.
func (e *Engine) Search(ctx context.Context, text string, boosts map[string]float64, limit int) (*executor.SearchResult, error) {
	snap := e.current.Load()
	if snap == nil {
		return nil, apperrors.ErrIndexNotBuilt
	}
	return e.executor.Execute(ctx, snap, parser.Query{Text: text, Boosts: boosts, Limit: limit})
}

// Execute is Search for a prepared query.
func (e *Engine) Execute(ctx context.Context, q parser.Query) (*executor.SearchResult, error) {
	return e.executor.Execute(ctx, e.current.Load(), q)
}
