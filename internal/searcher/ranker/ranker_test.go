package ranker

import (
	"context"
	"math"
	"testing"

	"github.com/nsriram/docsearch/internal/indexer/corpus"
	"github.com/nsriram/docsearch/internal/indexer/index"
	"github.com/nsriram/docsearch/internal/searcher/parser"
)

func build(t *testing.T, schema *corpus.Schema, docs ...map[string]string) *index.Snapshot {
	t.Helper()
	c := corpus.New(schema)
	if _, err := c.AddAll(docs); err != nil {
		t.Fatal(err)
	}
	snap, err := index.Build(context.Background(), c, index.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func plan(t *testing.T, snap *index.Snapshot, q parser.Query) *parser.Plan {
	t.Helper()
	p, err := parser.Parse(q, snap.Schema(), snap.Tokenizer())
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestIDF(t *testing.T) {
	if got := IDF(2, 2); got != 1 {
		t.Errorf("IDF(2,2) = %v, want 1", got)
	}
	want := math.Log(3.0/2.0) + 1
	if got := IDF(2, 1); math.Abs(got-want) > 1e-12 {
		t.Errorf("IDF(2,1) = %v, want %v", got, want)
	}
	if IDF(10, 1) <= IDF(10, 5) {
		t.Error("rarer terms must weigh more")
	}
}

func TestRankTermFrequency(t *testing.T) {
	snap := build(t, corpus.MustSchema([]string{"content"}, nil),
		map[string]string{"content": "alpha beta"},
		map[string]string{"content": "beta beta gamma"},
	)
	got := Rank(snap, plan(t, snap, parser.Query{Text: "beta", Limit: 10}), Params{})
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	if got[0].Score != 1 || got[1].Score != 2 {
		t.Fatalf("scores = %v, want tf × idf(=1)", got)
	}
}

func TestRankDuplicateTermsCountTwice(t *testing.T) {
	snap := build(t, corpus.MustSchema([]string{"content"}, nil),
		map[string]string{"content": "alpha"},
		map[string]string{"content": "beta"},
	)
	once := Rank(snap, plan(t, snap, parser.Query{Text: "alpha", Limit: 1}), Params{})
	twice := Rank(snap, plan(t, snap, parser.Query{Text: "alpha alpha", Limit: 1}), Params{})
	if len(once) != 1 || len(twice) != 1 || twice[0].Score != 2*once[0].Score {
		t.Fatalf("once = %v, twice = %v", once, twice)
	}
}

func TestRankBoostsAndExclusion(t *testing.T) {
	snap := build(t, corpus.MustSchema([]string{"content", "filename"}, nil),
		map[string]string{"content": "install guide", "filename": "setup.md"},
		map[string]string{"content": "other", "filename": "install.md"},
	)
	base := Rank(snap, plan(t, snap, parser.Query{Text: "install", Limit: 5}), Params{})
	boosted := Rank(snap, plan(t, snap, parser.Query{Text: "install", Limit: 5, Boosts: map[string]float64{"filename": 3}}), Params{})
	if boosted[1].Score != 3*base[1].Score {
		t.Fatalf("filename boost not applied: base %v boosted %v", base, boosted)
	}
	if boosted[0].Score != base[0].Score {
		t.Fatalf("content score changed: base %v boosted %v", base, boosted)
	}

	excluded := Rank(snap, plan(t, snap, parser.Query{Text: "install", Limit: 5, Boosts: map[string]float64{"filename": 0}}), Params{})
	if len(excluded) != 1 || excluded[0].DocID != 0 {
		t.Fatalf("zero boost should drop filename-only match: %v", excluded)
	}
}

func TestRankKeywordMatch(t *testing.T) {
	snap := build(t, corpus.MustSchema([]string{"content"}, []string{"tag"}),
		map[string]string{"tag": "urgent"},
		map[string]string{"tag": "urgent later"},
	)
	q := parser.Query{Text: " urgent ", Limit: 5, Boosts: map[string]float64{"tag": 2, "content": 0}}
	got := Rank(snap, plan(t, snap, q), Params{})
	if len(got) != 1 || got[0].DocID != 0 || got[0].Score != 2*DefaultKeywordMatchWeight {
		t.Fatalf("got %v", got)
	}

	got = Rank(snap, plan(t, snap, q), Params{KeywordMatchWeight: 4})
	if got[0].Score != 8 {
		t.Fatalf("custom weight: got %v", got)
	}
}

func TestRankEmptyTerms(t *testing.T) {
	snap := build(t, corpus.MustSchema([]string{"content"}, []string{"tag"}),
		map[string]string{"content": "x", "tag": "!!"},
	)
	if got := Rank(snap, plan(t, snap, parser.Query{Text: "!!", Limit: 1}), Params{}); len(got) != 0 {
		t.Fatalf("empty term sequence should score nothing, got %v", got)
	}
}

func TestRankClampsOverflow(t *testing.T) {
	snap := build(t, corpus.MustSchema([]string{"content"}, nil),
		map[string]string{"content": "beta"},
		map[string]string{"content": "beta beta"},
	)
	got := Rank(snap, plan(t, snap, parser.Query{Text: "beta", Limit: 5, Boosts: map[string]float64{"content": 1e308}}), Params{})
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	for _, sd := range got {
		if math.IsInf(sd.Score, 0) || math.IsNaN(sd.Score) {
			t.Fatalf("doc %d: non-finite score %v", sd.DocID, sd.Score)
		}
	}
	if got[1].Score != math.MaxFloat64 {
		t.Errorf("overflowed score = %v, want MaxFloat64", got[1].Score)
	}
}
