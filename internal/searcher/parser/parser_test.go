package parser

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/nsriram/docsearch/internal/indexer/corpus"
	"github.com/nsriram/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/nsriram/docsearch/pkg/errors"
)

var schema = corpus.MustSchema([]string{"content", "filename"}, []string{"tag"})

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want error
	}{
		{"ok", Query{Text: "x", Limit: 5, Boosts: map[string]float64{"content": 1, "tag": 0}}, nil},
		{"zero limit", Query{Text: "x", Limit: 0}, apperrors.ErrInvalidLimit},
		{"negative limit", Query{Text: "x", Limit: -3}, apperrors.ErrInvalidLimit},
		{"unknown field", Query{Text: "x", Limit: 1, Boosts: map[string]float64{"author": 1}}, apperrors.ErrUnknownField},
		{"negative boost", Query{Text: "x", Limit: 1, Boosts: map[string]float64{"content": -1}}, apperrors.ErrInvalidBoost},
		{"nan boost", Query{Text: "x", Limit: 1, Boosts: map[string]float64{"content": math.NaN()}}, apperrors.ErrInvalidBoost},
		{"inf boost", Query{Text: "x", Limit: 1, Boosts: map[string]float64{"content": math.Inf(1)}}, apperrors.ErrInvalidBoost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate(schema)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUnknownFieldIsSchemaViolation(t *testing.T) {
	err := Query{Text: "x", Limit: 1, Boosts: map[string]float64{"author": 2}}.Validate(schema)
	if !errors.Is(err, apperrors.ErrSchemaViolation) {
		t.Fatalf("err = %v, want ErrSchemaViolation in chain", err)
	}
}

func TestBoostDefault(t *testing.T) {
	q := Query{Boosts: map[string]float64{"filename": 2, "tag": 0}}
	if q.Boost("content") != 1 || q.Boost("filename") != 2 || q.Boost("tag") != 0 {
		t.Fatal("unexpected boost lookup")
	}
}

func TestParse(t *testing.T) {
	plan, err := Parse(Query{Text: "  Beta beta GAMMA ", Limit: 3}, schema, tokenizer.New(tokenizer.Config{}))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"beta", "beta", "gamma"}; !slices.Equal(plan.Terms, want) {
		t.Fatalf("Terms = %v, want %v", plan.Terms, want)
	}
	if plan.KeywordValue != "Beta beta GAMMA" {
		t.Fatalf("KeywordValue = %q", plan.KeywordValue)
	}
}

func TestParseRejectsBeforeTokenizing(t *testing.T) {
	if _, err := Parse(Query{Text: "x", Limit: 0}, schema, tokenizer.Tokenizer{}); !errors.Is(err, apperrors.ErrInvalidLimit) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseBoosts(t *testing.T) {
	got, err := ParseBoosts(" content:1, filename : 2.5 ,")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["content"] != 1 || got["filename"] != 2.5 {
		t.Fatalf("got %v", got)
	}
	if got, err := ParseBoosts(""); got != nil || err != nil {
		t.Fatalf("empty: %v, %v", got, err)
	}
	if _, err := ParseBoosts("content"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("missing weight: %v", err)
	}
	if _, err := ParseBoosts("content:abc"); !errors.Is(err, apperrors.ErrInvalidBoost) {
		t.Fatalf("bad weight: %v", err)
	}
}

func TestFormatBoosts(t *testing.T) {
	got := FormatBoosts(map[string]float64{"filename": 2, "content": 1.5})
	if got != "content:1.5,filename:2" {
		t.Fatalf("got %q", got)
	}
	if FormatBoosts(nil) != "" {
		t.Fatal("nil boosts should format empty")
	}
}
