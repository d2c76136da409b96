// Package index builds immutable per-field inverted indexes from a corpus.
package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nsriram/docsearch/internal/indexer/corpus"
	"github.com/nsriram/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/nsriram/docsearch/pkg/errors"
)

// Options configures a build.
type Options struct {
	Tokenizer              tokenizer.Tokenizer
	KeywordCaseInsensitive bool
	Generation             uint64
	// Now stamps BuiltAt; time.Now when nil.
	Now func() time.Time
}

const cancelCheckEvery = 256

// Build indexes every document of c in one pass.
func Build(ctx context.Context, c *corpus.Corpus, opts Options) (*Snapshot, error) {
	return BuildDocuments(ctx, c.Schema(), c.Documents(), opts)
}

// BuildDocuments indexes docs, which must carry ids 0..len(docs)-1 in order.
// Every document is checked against schema; any violation aborts the build
// without producing a snapshot.
func BuildDocuments(ctx context.Context, schema *corpus.Schema, docs []corpus.Document, opts Options) (*Snapshot, error) {
	textFields := schema.TextFields()
	keywordFields := schema.KeywordFields()

	snap := &Snapshot{
		schema:      schema,
		tokenizer:   opts.Tokenizer,
		text:        make(map[string]map[string]PostingList, len(textFields)),
		keywords:    make(map[string]map[string][]int, len(keywordFields)),
		keywordFold: opts.KeywordCaseInsensitive,
		docs:        make([]corpus.Document, len(docs)),
		generation:  opts.Generation,
	}
	for _, f := range textFields {
		snap.text[f] = make(map[string]PostingList)
	}
	for _, f := range keywordFields {
		snap.keywords[f] = make(map[string][]int)
	}

	termFreq := make(map[string]int)
	for i, doc := range docs {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("building index: %w", err)
			}
		}
		if doc.ID != i {
			return nil, fmt.Errorf("%w: document at position %d has id %d", apperrors.ErrSchemaViolation, i, doc.ID)
		}
		if err := schema.Validate(doc.Fields); err != nil {
			return nil, fmt.Errorf("document %d: %w", doc.ID, err)
		}
		snap.docs[i] = doc

		for _, field := range textFields {
			value := doc.Fields[field]
			if value == "" {
				continue
			}
			clear(termFreq)
			for term := range opts.Tokenizer.Terms(value) {
				termFreq[term]++
			}
			postings := snap.text[field]
			for term, tf := range termFreq {
				postings[term] = append(postings[term], Posting{DocID: doc.ID, Frequency: tf})
			}
		}

		for _, field := range keywordFields {
			value, ok := doc.Fields[field]
			if !ok {
				continue
			}
			if opts.KeywordCaseInsensitive {
				value = strings.ToLower(value)
			}
			snap.keywords[field][value] = append(snap.keywords[field][value], doc.ID)
		}
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	snap.builtAt = now()
	return snap, nil
}
