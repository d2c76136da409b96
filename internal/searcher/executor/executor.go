// Package executor runs validated queries against an index snapshot.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nsriram/docsearch/internal/indexer/index"
	"github.com/nsriram/docsearch/internal/searcher/merger"
	"github.com/nsriram/docsearch/internal/searcher/parser"
	"github.com/nsriram/docsearch/internal/searcher/ranker"
	apperrors "github.com/nsriram/docsearch/pkg/errors"
	"github.com/nsriram/docsearch/pkg/tracing"
)

// Hit is one ranked document with its stored fields.
type Hit struct {
	ID     int               `json:"id"`
	Score  float64           `json:"score"`
	Fields map[string]string `json:"fields"`
}

type SearchResult struct {
	Query      string   `json:"query"`
	Terms      []string `json:"terms"`
	TotalHits  int      `json:"total_hits"`
	Results    []Hit    `json:"results"`
	Generation uint64   `json:"generation"`
}

type Options struct {
	KeywordMatchWeight float64
}

type Executor struct {
	params ranker.Params
	logger *slog.Logger
}

func New(opts Options) *Executor {
	return &Executor{
		params: ranker.Params{KeywordMatchWeight: opts.KeywordMatchWeight},
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute validates q against snap's schema, scores it, and returns at most
// q.Limit hits. A nil snap fails with ErrIndexNotBuilt.
func (e *Executor) Execute(ctx context.Context, snap *index.Snapshot, q parser.Query) (*SearchResult, error) {
	if snap == nil {
		return nil, apperrors.ErrIndexNotBuilt
	}
	plan, err := parser.Parse(q, snap.Schema(), snap.Tokenizer())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}

	result := &SearchResult{
		Query:      q.Text,
		Terms:      plan.Terms,
		Results:    []Hit{},
		Generation: snap.Generation(),
	}
	if len(plan.Terms) == 0 {
		return result, nil
	}

	_, rankSpan := tracing.Start(ctx, "rank")
	scored := ranker.Rank(snap, plan, e.params)
	rankSpan.SetAttr("candidates", len(scored))
	rankSpan.End()

	_, topSpan := tracing.Start(ctx, "top_k")
	top := merger.TopK(scored, q.Limit)
	topSpan.End()

	result.TotalHits = len(scored)
	result.Results = make([]Hit, 0, len(top))
	for _, sd := range top {
		doc, _ := snap.Document(sd.DocID)
		result.Results = append(result.Results, Hit{ID: sd.DocID, Score: sd.Score, Fields: doc.Fields})
	}

	e.logger.Debug("query executed",
		"query", q.Text,
		"terms", len(plan.Terms),
		"candidates", len(scored),
		"results", len(result.Results),
		"generation", snap.Generation(),
	)
	return result, nil
}
