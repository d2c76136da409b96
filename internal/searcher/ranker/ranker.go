// Package ranker scores documents of a snapshot against a parsed query with
// boosted TF-IDF over text fields plus fixed-weight keyword matches.
package ranker

import (
	"math"

	"github.com/nsriram/docsearch/internal/indexer/index"
	"github.com/nsriram/docsearch/internal/searcher/parser"
)

// DefaultKeywordMatchWeight is the score a keyword match contributes before
// boosting.
const DefaultKeywordMatchWeight = 1.0

type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
}

type Params struct {
	KeywordMatchWeight float64
}

// IDF is the smoothed inverse document frequency ln((N+1)/(df+1)) + 1. It is
// positive for every df <= N, so a term present in every document still
// contributes.
func IDF(totalDocs, docFreq int) float64 {
	return math.Log(float64(totalDocs+1)/float64(docFreq+1)) + 1
}

// Rank returns every document with a positive score, in ascending id order.
// Additions happen in schema field order, then query term order, then
// posting order, so equal inputs give bit-identical scores. Scores that
// overflow are clamped to math.MaxFloat64.
func Rank(snap *index.Snapshot, plan *parser.Plan, params Params) []ScoredDoc {
	if len(plan.Terms) == 0 || snap.DocCount() == 0 {
		return nil
	}
	weight := params.KeywordMatchWeight
	if weight <= 0 {
		weight = DefaultKeywordMatchWeight
	}

	n := snap.DocCount()
	scores := make([]float64, n)
	schema := snap.Schema()

	for _, field := range schema.TextFields() {
		boost := plan.Boost(field)
		if boost == 0 {
			continue
		}
		for _, term := range plan.Terms {
			postings := snap.Postings(field, term)
			if len(postings) == 0 {
				continue
			}
			idf := IDF(n, postings.DocFreq())
			for _, p := range postings {
				scores[p.DocID] += boost * float64(p.Frequency) * idf
			}
		}
	}

	if plan.KeywordValue != "" {
		for _, field := range schema.KeywordFields() {
			boost := plan.Boost(field)
			if boost == 0 {
				continue
			}
			for _, id := range snap.KeywordMatches(field, plan.KeywordValue) {
				scores[id] += boost * weight
			}
		}
	}

	ranked := make([]ScoredDoc, 0)
	for id, score := range scores {
		if math.IsInf(score, 1) {
			score = math.MaxFloat64
		}
		if score > 0 {
			ranked = append(ranked, ScoredDoc{DocID: id, Score: score})
		}
	}
	return ranked
}
