package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/nsriram/docsearch/internal/indexer/corpus"
	"github.com/nsriram/docsearch/internal/indexer/index"
	"github.com/nsriram/docsearch/internal/searcher/parser"
	apperrors "github.com/nsriram/docsearch/pkg/errors"
)

var contentOnly = corpus.MustSchema([]string{"content"}, nil)

func build(t testing.TB, schema *corpus.Schema, docs ...map[string]string) *index.Snapshot {
	t.Helper()
	c := corpus.New(schema)
	if _, err := c.AddAll(docs); err != nil {
		t.Fatal(err)
	}
	snap, err := index.Build(context.Background(), c, index.Options{Generation: 1})
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func ids(r *SearchResult) []int {
	out := make([]int, len(r.Results))
	for i, h := range r.Results {
		out[i] = h.ID
	}
	return out
}

func scoreOf(r *SearchResult, id int) float64 {
	for _, h := range r.Results {
		if h.ID == id {
			return h.Score
		}
	}
	return 0
}

func search(t *testing.T, snap *index.Snapshot, q parser.Query) *SearchResult {
	t.Helper()
	res, err := New(Options{}).Execute(context.Background(), snap, q)
	if err != nil {
		t.Fatalf("Execute(%+v): %v", q, err)
	}
	return res
}

func TestScenarioTermFrequencyRanking(t *testing.T) {
	snap := build(t, contentOnly,
		map[string]string{"content": "alpha beta"},
		map[string]string{"content": "beta beta gamma"},
	)
	res := search(t, snap, parser.Query{Text: "beta", Boosts: map[string]float64{"content": 1}, Limit: 10})
	if got := ids(res); !reflect.DeepEqual(got, []int{1, 0}) {
		t.Fatalf("ids = %v, want [1 0]", got)
	}
	if res.TotalHits != 2 || res.Generation != 1 {
		t.Fatalf("TotalHits = %d, Generation = %d", res.TotalHits, res.Generation)
	}
	if res.Results[0].Fields["content"] != "beta beta gamma" {
		t.Fatalf("fields not returned: %+v", res.Results[0])
	}

	res = search(t, snap, parser.Query{Text: "beta", Boosts: map[string]float64{"content": 1}, Limit: 1})
	if got := ids(res); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("top_k=1 ids = %v, want [1]", got)
	}

	res = search(t, snap, parser.Query{Text: "zzz", Limit: 10})
	if len(res.Results) != 0 || res.TotalHits != 0 {
		t.Fatalf("zzz returned %v", res.Results)
	}
}

func TestScenarioKeywordMatch(t *testing.T) {
	snap := build(t, corpus.MustSchema([]string{"content"}, []string{"tag"}),
		map[string]string{"tag": "urgent"},
	)
	res := search(t, snap, parser.Query{Text: "urgent", Boosts: map[string]float64{"tag": 2, "content": 0}, Limit: 5})
	if len(res.Results) != 1 || res.Results[0].ID != 0 || res.Results[0].Score != 2 {
		t.Fatalf("results = %+v, want id 0 with score 2", res.Results)
	}
}

func TestSelfRetrieval(t *testing.T) {
	docs := make([]map[string]string, 20)
	for i := range docs {
		docs[i] = map[string]string{"content": fmt.Sprintf("shared words unique%d", i)}
	}
	snap := build(t, contentOnly, docs...)
	for i := range docs {
		res := search(t, snap, parser.Query{Text: fmt.Sprintf("unique%d", i), Limit: 1})
		if len(res.Results) != 1 || res.Results[0].ID != i {
			t.Fatalf("unique%d: got %v", i, ids(res))
		}
	}
}

func TestMonotonicTermFrequency(t *testing.T) {
	other := map[string]string{"content": "foo baz"}
	low := build(t, contentOnly, map[string]string{"content": "foo bar"}, other)
	high := build(t, contentOnly, map[string]string{"content": "foo foo bar"}, other)
	q := parser.Query{Text: "foo", Limit: 5}
	if scoreOf(search(t, high, q), 0) < scoreOf(search(t, low, q), 0) {
		t.Fatal("higher term frequency lowered the score")
	}
}

func TestBoostMonotonicity(t *testing.T) {
	snap := build(t, corpus.MustSchema([]string{"content", "filename"}, nil),
		map[string]string{"content": "deploy notes", "filename": "deploy.md"},
		map[string]string{"content": "unrelated", "filename": "readme.md"},
	)
	prev := -1.0
	for _, w := range []float64{0, 0.5, 1, 2, 10} {
		res := search(t, snap, parser.Query{Text: "deploy", Boosts: map[string]float64{"content": 0, "filename": w}, Limit: 5})
		s := scoreOf(res, 0)
		if s < prev {
			t.Fatalf("filename boost %v: score %v fell below %v", w, s, prev)
		}
		prev = s
	}
}

func TestEmptyQueryIdentity(t *testing.T) {
	snap := build(t, corpus.MustSchema([]string{"content"}, []string{"tag"}),
		map[string]string{"content": "anything", "tag": ""},
	)
	for _, text := range []string{"", "   ", "?!"} {
		res := search(t, snap, parser.Query{Text: text, Boosts: map[string]float64{"tag": 5}, Limit: 3})
		if len(res.Results) != 0 {
			t.Fatalf("%q returned %v", text, ids(res))
		}
	}
}

func TestEmptyCorpus(t *testing.T) {
	snap := build(t, contentOnly)
	res := search(t, snap, parser.Query{Text: "anything", Limit: 3})
	if len(res.Results) != 0 {
		t.Fatalf("results = %v", res.Results)
	}
}

func TestDeterminism(t *testing.T) {
	docs := make([]map[string]string, 30)
	for i := range docs {
		docs[i] = map[string]string{"content": "same text for everyone"}
	}
	snap := build(t, contentOnly, docs...)
	q := parser.Query{Text: "same everyone", Limit: 10}
	first := search(t, snap, q)
	for i := 0; i < 5; i++ {
		if again := search(t, snap, q); !reflect.DeepEqual(first, again) {
			t.Fatal("identical queries returned different results")
		}
	}
	if got := ids(first); !reflect.DeepEqual(got, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}) {
		t.Fatalf("ties not broken by ascending id: %v", got)
	}
}

func TestTopKBound(t *testing.T) {
	snap := build(t, contentOnly,
		map[string]string{"content": "a b"},
		map[string]string{"content": "b c"},
		map[string]string{"content": "c d"},
	)
	for _, k := range []int{1, 2, 3, 10} {
		res := search(t, snap, parser.Query{Text: "b", Limit: k})
		if len(res.Results) > k || len(res.Results) > res.TotalHits || res.TotalHits != 2 {
			t.Fatalf("k=%d: %d results, %d hits", k, len(res.Results), res.TotalHits)
		}
		for _, h := range res.Results {
			if h.Score <= 0 {
				t.Fatalf("non-positive score in results: %+v", h)
			}
		}
	}
}

func TestExecuteErrors(t *testing.T) {
	snap := build(t, contentOnly, map[string]string{"content": "x"})
	ex := New(Options{})
	tests := []struct {
		name string
		snap *index.Snapshot
		q    parser.Query
		want error
	}{
		{"not built", nil, parser.Query{Text: "x", Limit: 1}, apperrors.ErrIndexNotBuilt},
		{"bad limit", snap, parser.Query{Text: "x", Limit: 0}, apperrors.ErrInvalidLimit},
		{"unknown field", snap, parser.Query{Text: "x", Limit: 1, Boosts: map[string]float64{"title": 1}}, apperrors.ErrSchemaViolation},
		{"negative boost", snap, parser.Query{Text: "x", Limit: 1, Boosts: map[string]float64{"content": -2}}, apperrors.ErrInvalidBoost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ex.Execute(context.Background(), tt.snap, tt.q); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExecuteCancelled(t *testing.T) {
	snap := build(t, contentOnly, map[string]string{"content": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(Options{}).Execute(ctx, snap, parser.Query{Text: "x", Limit: 1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func BenchmarkExecute(b *testing.B) {
	docs := make([]map[string]string, 5000)
	for i := range docs {
		docs[i] = map[string]string{"content": fmt.Sprintf("search engine document %d about indexing and ranking term%d", i, i%50)}
	}
	snap := build(b, contentOnly, docs...)
	ex := New(Options{})
	q := parser.Query{Text: "indexing ranking term7", Limit: 10}
	b.ResetTimer()
	for b.Loop() {
		if _, err := ex.Execute(context.Background(), snap, q); err != nil {
			b.Fatal(err)
		}
	}
}
