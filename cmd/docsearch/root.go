package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"

	"github.com/spf13/cobra"

	"github.com/nsriram/docsearch/internal/indexer"
	"github.com/nsriram/docsearch/internal/ingestion/fetch"
	"github.com/nsriram/docsearch/internal/ingestion/sources"
	"github.com/nsriram/docsearch/internal/searcher/parser"
	"github.com/nsriram/docsearch/pkg/config"
	"github.com/nsriram/docsearch/pkg/logger"
	"github.com/nsriram/docsearch/pkg/postgres"
)

type rootOptions struct {
	configPath string
	archive    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "docsearch",
		Short:        "Search a documentation corpus",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// stdout belongs to results and the MCP stdio transport.
			logger.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (defaults when empty)")
	cmd.PersistentFlags().StringVar(&opts.archive, "archive", "", "zip archive of markdown files to index")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(newSearchCmd(opts), newMCPCmd(opts))
	return cmd
}

// app is an engine built from every configured source.
type app struct {
	cfg     *config.Config
	engine  *indexer.Engine
	fetcher *fetch.Client
}

func (o *rootOptions) build(ctx context.Context) (*app, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.archive != "" {
		cfg.Sources.Archive.Path = o.archive
	}

	engineCfg, err := indexer.ConfigFrom(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("index schema: %w", err)
	}
	engine := indexer.NewEngine(engineCfg, nil)

	var db *sql.DB
	if cfg.Postgres.Enabled && cfg.Sources.Postgres.Enabled {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		defer pg.Close()
		db = pg.DB
	}
	fetcher := sources.FetchClient(cfg.Sources.Fetch, nil)
	srcs := sources.FromConfig(cfg.Sources, fetcher, db)
	load := sources.Loader(srcs)
	if load == nil {
		return nil, fmt.Errorf("no corpus sources: pass --archive or configure sources")
	}

	docs, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	if _, err := engine.Rebuild(ctx, docs); err != nil {
		return nil, err
	}
	slog.Info("index built", "documents", len(docs), "sources", len(srcs))
	return &app{cfg: cfg, engine: engine, fetcher: fetcher}, nil
}

// boosts overlays the --boost flag on the configured defaults.
func (a *app) boosts(flag string) (map[string]float64, error) {
	out := maps.Clone(a.cfg.Search.Boosts)
	if flag == "" {
		return out, nil
	}
	overrides, err := parser.ParseBoosts(flag)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = make(map[string]float64, len(overrides))
	}
	maps.Copy(out, overrides)
	return out, nil
}
