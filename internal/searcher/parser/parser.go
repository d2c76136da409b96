// Package parser validates search queries against an index schema and
// turns them into executable plans.
package parser

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/nsriram/docsearch/internal/indexer/corpus"
	"github.com/nsriram/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/nsriram/docsearch/pkg/errors"
)

// Query is a caller's search request. A field missing from Boosts has
// weight 1; weight 0 excludes the field.
type Query struct {
	Text   string             `json:"text"`
	Boosts map[string]float64 `json:"boosts,omitempty"`
	Limit  int                `json:"limit"`
}

// Boost returns the weight applied to field.
func (q Query) Boost(field string) float64 {
	if w, ok := q.Boosts[field]; ok {
		return w
	}
	return 1
}

// Validate checks the boost keys against schema and the limit and weights
// for range. Keys are checked in sorted order so the reported field is
// deterministic.
func (q Query) Validate(schema *corpus.Schema) error {
	if q.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", apperrors.ErrInvalidLimit, q.Limit)
	}
	for _, field := range slices.Sorted(maps.Keys(q.Boosts)) {
		if !schema.Has(field) {
			return fmt.Errorf("boost %q: %w", field, apperrors.ErrUnknownField)
		}
		w := q.Boosts[field]
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: %q has weight %v", apperrors.ErrInvalidBoost, field, w)
		}
	}
	return nil
}

// Plan is a validated query with its normalized terms.
type Plan struct {
	Query
	// Terms holds the query's terms in order, duplicates included.
	Terms []string
	// KeywordValue is the trimmed raw text matched against keyword fields.
	KeywordValue string
}

// Parse validates q and tokenizes its text with tok, which must be the
// tokenizer the target snapshot was built with.
func Parse(q Query, schema *corpus.Schema, tok tokenizer.Tokenizer) (*Plan, error) {
	if err := q.Validate(schema); err != nil {
		return nil, err
	}
	plan := &Plan{
		Query:        q,
		KeywordValue: strings.TrimSpace(q.Text),
	}
	for term := range tok.Terms(q.Text) {
		plan.Terms = append(plan.Terms, term)
	}
	return plan, nil
}

// ParseBoosts reads "field:weight,field:weight". Whitespace around entries
// is ignored; an empty string yields nil.
func ParseBoosts(s string) (map[string]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	boosts := make(map[string]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, weight, ok := strings.Cut(part, ":")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("%w: boost %q must be field:weight", apperrors.ErrInvalidInput, part)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(weight), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: boost %q: %v", apperrors.ErrInvalidBoost, part, err)
		}
		boosts[field] = w
	}
	return boosts, nil
}

// FormatBoosts renders boosts in sorted field order, the inverse of
// ParseBoosts. It is used as a stable cache-key component.
func FormatBoosts(boosts map[string]float64) string {
	var b strings.Builder
	for i, field := range slices.Sorted(maps.Keys(boosts)) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(field)
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(boosts[field], 'g', -1, 64))
	}
	return b.String()
}
