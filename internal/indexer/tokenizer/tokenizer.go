// Package tokenizer turns raw field text into normalized search terms. Input
// is lower-cased with strings.ToLower (no full case folding and no Unicode
// normalization) and split on every rune that is not a letter, digit or
// nonspacing mark.
// Stop-word removal, suffix stemming and a minimum term length are optional
// and off by default, so the zero Tokenizer is the plain normalizer.
package tokenizer

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Config selects the optional normalization steps.
type Config struct {
	StopWords     bool `json:"stop_words"`
	Stem          bool `json:"stem"`
	MinTermLength int  `json:"min_term_length"`
}

// Tokenizer is a comparable value; a Snapshot carries the one it was built
// with so queries are normalized the same way as documents.
type Tokenizer struct {
	cfg Config
}

func New(cfg Config) Tokenizer {
	if cfg.MinTermLength < 0 {
		cfg.MinTermLength = 0
	}
	return Tokenizer{cfg: cfg}
}

func (t Tokenizer) Config() Config { return t.cfg }

// Terms returns a lazy sequence over the terms of text. Every range over the
// sequence rescans text from the start.
func (t Tokenizer) Terms(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		i := 0
		for i < len(text) {
			for i < len(text) {
				r, size := utf8.DecodeRuneInString(text[i:])
				if isTermRune(r) {
					break
				}
				i += size
			}
			start := i
			for i < len(text) {
				r, size := utf8.DecodeRuneInString(text[i:])
				if !isTermRune(r) {
					break
				}
				i += size
			}
			if start == i {
				continue
			}
			term, ok := t.normalize(text[start:i])
			if !ok {
				continue
			}
			if !yield(term) {
				return
			}
		}
	}
}

func (t Tokenizer) normalize(word string) (string, bool) {
	word = strings.ToLower(word)
	if t.cfg.StopWords {
		if _, stop := stopWords[word]; stop {
			return "", false
		}
	}
	if t.cfg.Stem {
		word = stem(word)
	}
	if word == "" || utf8.RuneCountInString(word) < t.cfg.MinTermLength {
		return "", false
	}
	return word, true
}

// isTermRune keeps nonspacing marks inside a term so decomposed accents do
// not split words.
func isTermRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

type suffixRule struct {
	suffix      string
	replacement string
	minLen      int
}

// First match wins, so longer suffixes precede their tails.
var suffixRules = []suffixRule{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

func stem(word string) string {
	for _, rule := range suffixRules {
		if !strings.HasSuffix(word, rule.suffix) {
			continue
		}
		stemmed := word[:len(word)-len(rule.suffix)] + rule.replacement
		if len(stemmed) >= rule.minLen {
			return stemmed
		}
	}
	return word
}
