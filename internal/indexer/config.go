package indexer

import (
	"github.com/nsriram/docsearch/internal/indexer/corpus"
	"github.com/nsriram/docsearch/internal/indexer/tokenizer"
	"github.com/nsriram/docsearch/pkg/config"
)

// ConfigFrom turns the index section of the service config into an engine
// Config.
func ConfigFrom(ic config.IndexConfig) (Config, error) {
	schema, err := corpus.NewSchema(ic.TextFields, ic.KeywordFields)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Schema: schema,
		Tokenizer: tokenizer.Config{
			StopWords:     ic.StopWords,
			Stem:          ic.Stem,
			MinTermLength: ic.MinTermLength,
		},
		KeywordCaseInsensitive: ic.KeywordCaseInsensitive,
		KeywordMatchWeight:     ic.KeywordMatchWeight,
	}, nil
}
