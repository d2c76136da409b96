// Package sources assembles the configured corpus sources.
package sources

import (
	"context"
	"database/sql"

	"github.com/nsriram/docsearch/internal/ingestion"
	"github.com/nsriram/docsearch/internal/ingestion/archive"
	"github.com/nsriram/docsearch/internal/ingestion/fetch"
	"github.com/nsriram/docsearch/internal/ingestion/pgsource"
	"github.com/nsriram/docsearch/pkg/config"
	"github.com/nsriram/docsearch/pkg/metrics"
	"github.com/nsriram/docsearch/pkg/resilience"
)

// FromConfig returns the enabled sources in archive, fetch, postgres order.
// The fetch source needs fetcher and the postgres source needs db; either
// is skipped when nil. The postgres source must also be enabled.
func FromConfig(cfg config.SourcesConfig, fetcher *fetch.Client, db *sql.DB) []ingestion.Source {
	var out []ingestion.Source
	if cfg.Archive.Path != "" {
		out = append(out, archive.Source{
			Path: cfg.Archive.Path,
			Cfg: archive.Config{
				Extensions: cfg.Archive.Extensions,
				StripRoot:  cfg.Archive.StripRoot,
			},
		})
	}
	if len(cfg.Fetch.URLs) > 0 && fetcher != nil {
		out = append(out, fetch.Source{Client: fetcher, URLs: cfg.Fetch.URLs})
	}
	if cfg.Postgres.Enabled && db != nil {
		out = append(out, pgsource.Source{DB: db, Query: cfg.Postgres.Query, Timeout: cfg.Postgres.Timeout})
	}
	return out
}

// Loader loads every source on each call. It returns nil when there are no
// sources.
func Loader(srcs []ingestion.Source) func(ctx context.Context) ([]ingestion.Document, error) {
	if len(srcs) == 0 {
		return nil
	}
	return func(ctx context.Context) ([]ingestion.Document, error) {
		return ingestion.LoadAll(ctx, srcs...)
	}
}

// FetchClient builds the fetch client from config. When m is set, circuit
// transitions are exported on the circuit_breaker_state gauge.
func FetchClient(cfg config.FetchSourceConfig, m *metrics.Metrics) *fetch.Client {
	fc := fetch.Config{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.Timeout,
		MaxAttempts: cfg.MaxAttempts,
	}
	if m != nil {
		gauge := m.CircuitBreakerState.WithLabelValues("fetch")
		gauge.Set(float64(resilience.StateClosed))
		fc.OnBreakerChange = func(_, to resilience.State) { gauge.Set(float64(to)) }
	}
	return fetch.NewClient(fc)
}
