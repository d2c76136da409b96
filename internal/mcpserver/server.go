// Package mcpserver exposes documentation search and page fetching as Model
// Context Protocol tools, over stdio or streamable HTTP.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nsriram/docsearch/internal/indexer/tokenizer"
	"github.com/nsriram/docsearch/internal/searcher/executor"
	"github.com/nsriram/docsearch/internal/searcher/parser"
)

var ErrMissingSearcher = errors.New("mcpserver: searcher is required")

// Searcher runs a query against the current index; *indexer.Engine
// implements it.
type Searcher interface {
	Execute(ctx context.Context, q parser.Query) (*executor.SearchResult, error)
}

// Fetcher retrieves a page as markdown; *fetch.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Deps struct {
	Searcher Searcher
	// Fetcher is optional. Without it scrape_web is not registered.
	Fetcher Fetcher
	// Boosts are applied to every search_docs call.
	Boosts      map[string]float64
	DefaultTopK int
}

type Server struct {
	deps    Deps
	counter tokenizer.Tokenizer
	server  *mcp.Server
	logger  *slog.Logger
}

func New(deps Deps, name, version string) (*Server, error) {
	if deps.Searcher == nil {
		return nil, ErrMissingSearcher
	}
	if deps.DefaultTopK <= 0 {
		deps.DefaultTopK = 5
	}
	s := &Server{
		deps:    deps,
		counter: tokenizer.New(tokenizer.Config{}),
		server:  mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		logger:  slog.Default().With("component", "mcp-server"),
	}
	s.registerTools()
	return s, nil
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server { return s.server }

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server running on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// RunHTTP serves the streamable HTTP transport on addr until ctx ends.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("mcp http shutdown error", "error", err)
		}
	}()

	s.logger.Info("mcp server listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("mcp http server: %w", err)
	}
	return nil
}
