package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nsriram/docsearch/internal/searcher/executor"
	"github.com/nsriram/docsearch/internal/searcher/parser"
)

func newSearchCmd(root *rootOptions) *cobra.Command {
	var (
		limit  int
		boost  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Build the index and print the best matching files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.build(cmd.Context())
			if err != nil {
				return err
			}
			boosts, err := a.boosts(boost)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("limit") {
				limit = a.cfg.Search.DefaultLimit
			}
			result, err := a.engine.Execute(cmd.Context(), parser.Query{
				Text:   args[0],
				Boosts: boosts,
				Limit:  limit,
			})
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if asJSON {
				return printJSON(cmd, result)
			}
			printResults(cmd, result)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (config default when unset)")
	cmd.Flags().StringVar(&boost, "boost", "", "per-field boosts, e.g. content:1,filename:2")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func printJSON(cmd *cobra.Command, result *executor.SearchResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func printResults(cmd *cobra.Command, result *executor.SearchResult) {
	out := cmd.OutOrStdout()
	if len(result.Results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return
	}
	fmt.Fprintf(out, "Top %d results for query %q:\n", len(result.Results), result.Query)
	for i, hit := range result.Results {
		fmt.Fprintf(out, "%d. %s\n", i+1, hit.Fields["filename"])
	}
}
