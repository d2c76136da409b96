// Package ingestion loads corpus documents from the configured sources:
// zip archives of markdown, fetched web pages, and a relational table.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Field names produced by the built-in sources.
const (
	FieldFilename = "filename"
	FieldContent  = "content"
	FieldTitle    = "title"
	FieldSection  = "section"
)

// Document is a field-name to value mapping, ready for the corpus.
type Document = map[string]string

// Source yields a batch of documents in a stable order.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]Document, error)
}

// LoadAll loads every source concurrently and concatenates the results in
// the order the sources were given, so document ids stay deterministic.
// Any source failure fails the whole load.
func LoadAll(ctx context.Context, sources ...Source) ([]Document, error) {
	logger := slog.Default().With("component", "ingestion")
	batches := make([][]Document, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			start := time.Now()
			docs, err := src.Load(ctx)
			if err != nil {
				return fmt.Errorf("loading source %s: %w", src.Name(), err)
			}
			batches[i] = docs
			logger.Info("source loaded", "source", src.Name(), "documents", len(docs), "duration", time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, b := range batches {
		total += len(b)
	}
	all := make([]Document, 0, total)
	for _, b := range batches {
		all = append(all, b...)
	}
	return all, nil
}

// Static is a Source over documents already in memory.
type Static struct {
	Label string
	Docs  []Document
}

func (s Static) Name() string { return s.Label }

func (s Static) Load(context.Context) ([]Document, error) { return s.Docs, nil }
