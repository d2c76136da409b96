package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nsriram/docsearch/internal/analytics"
	"github.com/nsriram/docsearch/internal/indexer"
	"github.com/nsriram/docsearch/internal/ingestion/sources"
	"github.com/nsriram/docsearch/internal/mcpserver"
	"github.com/nsriram/docsearch/internal/searcher/cache"
	"github.com/nsriram/docsearch/internal/searcher/handler"
	"github.com/nsriram/docsearch/pkg/config"
	"github.com/nsriram/docsearch/pkg/health"
	"github.com/nsriram/docsearch/pkg/kafka"
	"github.com/nsriram/docsearch/pkg/logger"
	"github.com/nsriram/docsearch/pkg/metrics"
	"github.com/nsriram/docsearch/pkg/middleware"
	"github.com/nsriram/docsearch/pkg/postgres"
	"github.com/nsriram/docsearch/pkg/ratelimit"
	pkgredis "github.com/nsriram/docsearch/pkg/redis"
)

const analyticsSaveInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownMetrics(context.Background())
	}

	engineCfg, err := indexer.ConfigFrom(cfg.Index)
	if err != nil {
		slog.Error("invalid index schema", "error", err)
		os.Exit(1)
	}
	engine := indexer.NewEngine(engineCfg, m)

	var pg *postgres.Client
	if cfg.Postgres.Enabled {
		pg, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, analytics snapshots and the postgres source are disabled", "error", err)
		} else {
			defer pg.Close()
		}
	}
	var db *sql.DB
	if pg != nil {
		db = pg.DB
	}

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			slog.Info("search cache enabled",
				"addr", cfg.Redis.Addr,
				"ttl", cfg.Redis.CacheTTL,
			)
		}
	}

	aggregator := analytics.NewAggregator()
	var publisher analytics.Publisher = aggregator
	if cfg.Kafka.Enabled {
		topic := cfg.Kafka.Topics.AnalyticsEvents
		producer := kafka.NewProducer(cfg.Kafka, topic)
		defer producer.Close()
		publisher = analytics.NewKafkaPublisher(producer)

		consumer := kafka.NewConsumer(cfg.Kafka, topic, aggregator.HandleMessage)
		go func() {
			if err := aggregator.Consume(ctx, consumer); err != nil {
				slog.Error("analytics aggregator error", "error", err)
			}
		}()
		slog.Info("analytics routed through kafka", "topic", topic)
	}
	collector := analytics.NewCollector(publisher, analytics.CollectorConfig{})
	collector.Start(ctx)
	defer collector.Close()

	if db != nil {
		store := analytics.NewStore(db)
		if err := store.Restore(ctx, aggregator); err != nil {
			slog.Warn("could not restore analytics snapshot", "error", err)
		}
		go store.RunPeriodicSave(ctx, aggregator, analyticsSaveInterval)
	}

	fetcher := sources.FetchClient(cfg.Sources.Fetch, m)
	srcs := sources.FromConfig(cfg.Sources, fetcher, db)
	h := handler.New(engine, sources.Loader(srcs), queryCache, collector, m, handler.Options{
		DefaultLimit:  cfg.Search.DefaultLimit,
		MaxResults:    cfg.Search.MaxResults,
		DefaultBoosts: cfg.Search.Boosts,
	})
	if len(srcs) > 0 {
		if snap, err := h.Reload(ctx); err != nil {
			slog.Error("initial index build failed, serving empty index", "error", err)
		} else {
			slog.Info("initial index built", "documents", snap.DocCount(), "sources", len(srcs))
		}
	} else {
		slog.Warn("no corpus sources configured, index stays empty")
	}

	checker := health.NewChecker()
	checker.Register("index_engine", health.Condition(func() (bool, string) {
		if snap := engine.Snapshot(); snap != nil {
			return true, fmt.Sprintf("generation %d, %d documents", snap.Generation(), snap.DocCount())
		}
		return false, "index not built"
	}))
	if cfg.Redis.Enabled {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if redisClient == nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "unavailable at startup"}
			}
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	if pg != nil {
		checker.Register("postgres", health.Ping(pg.Ping))
	}
	checker.Register("fetch", fetcher.Health)

	mcpSrv, err := mcpserver.New(mcpserver.Deps{
		Searcher:    engine,
		Fetcher:     fetcher,
		Boosts:      cfg.Search.Boosts,
		DefaultTopK: cfg.Search.DefaultLimit,
	}, cfg.MCP.Name, cfg.MCP.Version)
	if err != nil {
		slog.Error("failed to create mcp server", "error", err)
		os.Exit(1)
	}

	analyticsH := analytics.NewHandler(aggregator)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	// MCP sessions stream, so they bypass the request timeout.
	root := http.NewServeMux()
	root.Handle("/", middleware.Timeout(cfg.Server.WriteTimeout)(mux))
	root.Handle("/mcp", mcpSrv.Handler())

	var chain http.Handler = root
	if cfg.Server.RateLimit > 0 {
		chain = middleware.RateLimit(ratelimit.New(ctx, cfg.Server.RateLimit, time.Minute))(chain)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     chain,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
