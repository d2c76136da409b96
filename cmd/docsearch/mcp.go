package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nsriram/docsearch/internal/mcpserver"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server commands",
	}

	var port int
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve search_docs, scrape_web and count_matching_words over MCP",
		Long: `Build the index, then serve it to MCP clients.

By default the server speaks JSON-RPC over stdio. With --port it serves the
streamable HTTP transport instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.build(cmd.Context())
			if err != nil {
				return err
			}
			srv, err := mcpserver.New(mcpserver.Deps{
				Searcher:    a.engine,
				Fetcher:     a.fetcher,
				Boosts:      a.cfg.Search.Boosts,
				DefaultTopK: a.cfg.Search.DefaultLimit,
			}, a.cfg.MCP.Name, a.cfg.MCP.Version)
			if err != nil {
				return err
			}
			if port > 0 {
				addr := fmt.Sprintf(":%d", port)
				fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://localhost%s\n", addr)
				return srv.RunHTTP(cmd.Context(), addr)
			}
			return srv.Run(cmd.Context())
		},
	}
	serve.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (0 = use stdio)")
	cmd.AddCommand(serve)
	return cmd
}
