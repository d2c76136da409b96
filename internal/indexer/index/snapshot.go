package index

import (
	"slices"
	"strings"
	"time"

	"github.com/nsriram/docsearch/internal/indexer/corpus"
	"github.com/nsriram/docsearch/internal/indexer/tokenizer"
)

// Snapshot is an immutable, fully built index. Every method is safe for
// concurrent use without locking.
type Snapshot struct {
	schema    *corpus.Schema
	tokenizer tokenizer.Tokenizer

	text        map[string]map[string]PostingList
	keywords    map[string]map[string][]int
	keywordFold bool

	docs       []corpus.Document
	generation uint64
	builtAt    time.Time
}

func (s *Snapshot) Schema() *corpus.Schema         { return s.schema }
func (s *Snapshot) Tokenizer() tokenizer.Tokenizer { return s.tokenizer }
func (s *Snapshot) DocCount() int                  { return len(s.docs) }
func (s *Snapshot) Generation() uint64             { return s.generation }
func (s *Snapshot) BuiltAt() time.Time             { return s.builtAt }

// KeywordCaseInsensitive reports whether keyword values were folded at build
// time.
func (s *Snapshot) KeywordCaseInsensitive() bool { return s.keywordFold }

// Postings returns the posting list of term in a text field, or nil. The
// returned list must not be modified.
func (s *Snapshot) Postings(field, term string) PostingList {
	return s.text[field][term]
}

func (s *Snapshot) DocFreq(field, term string) int {
	return len(s.text[field][term])
}

// TermCount is the number of distinct terms indexed for a text field.
func (s *Snapshot) TermCount(field string) int {
	return len(s.text[field])
}

// KeywordMatches returns the ids of documents whose keyword field equals
// value, folding case when the snapshot was built case-insensitive.
func (s *Snapshot) KeywordMatches(field, value string) []int {
	if s.keywordFold {
		value = strings.ToLower(value)
	}
	return s.keywords[field][value]
}

// Document returns the stored document with id.
func (s *Snapshot) Document(id int) (corpus.Document, bool) {
	if id < 0 || id >= len(s.docs) {
		return corpus.Document{}, false
	}
	return s.docs[id], true
}

// Terms lists a text field's entries in term order.
func (s *Snapshot) Terms(field string) []TermEntry {
	terms := s.text[field]
	entries := make([]TermEntry, 0, len(terms))
	for term, postings := range terms {
		entries = append(entries, TermEntry{Term: term, Postings: postings})
	}
	slices.SortFunc(entries, func(a, b TermEntry) int { return strings.Compare(a.Term, b.Term) })
	return entries
}

// Stats summarizes a snapshot for the stats endpoint and metrics.
type Stats struct {
	Generation    uint64           `json:"generation"`
	Documents     int              `json:"documents"`
	TermsPerField map[string]int   `json:"terms_per_field"`
	KeywordValues map[string]int   `json:"keyword_values"`
	Tokenizer     tokenizer.Config `json:"tokenizer"`
	BuiltAt       time.Time        `json:"built_at"`
}

func (s *Snapshot) Stats() Stats {
	st := Stats{
		Generation:    s.generation,
		Documents:     len(s.docs),
		TermsPerField: make(map[string]int, len(s.text)),
		KeywordValues: make(map[string]int, len(s.keywords)),
		Tokenizer:     s.tokenizer.Config(),
		BuiltAt:       s.builtAt,
	}
	for field, terms := range s.text {
		st.TermsPerField[field] = len(terms)
	}
	for field, values := range s.keywords {
		st.KeywordValues[field] = len(values)
	}
	return st
}
