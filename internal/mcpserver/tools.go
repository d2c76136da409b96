package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nsriram/docsearch/internal/searcher/parser"
)

type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of results (default 5)"`
}

type SearchOutput struct {
	Results   []SearchHit `json:"results"`
	TotalHits int         `json:"total_hits"`
}

type SearchHit struct {
	Filename string  `json:"filename"`
	Title    string  `json:"title,omitempty"`
	Score    float64 `json:"score"`
	Content  string  `json:"content"`
}

type ScrapeInput struct {
	URL string `json:"url" jsonschema:"the URL of the web page to scrape"`
}

type ScrapeOutput struct {
	Content string `json:"content"`
}

type CountInput struct {
	Text string `json:"text" jsonschema:"the text to search within"`
	Word string `json:"word" jsonschema:"the word to count"`
}

type CountOutput struct {
	Count int `json:"count"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_docs",
		Description: "Search the indexed documentation and return the best matching files",
	}, s.handleSearch)

	if s.deps.Fetcher != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "scrape_web",
			Description: "Retrieve the content of a web page as markdown",
		}, s.handleScrape)
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "count_matching_words",
		Description: "Count case-insensitive whole-word occurrences of a word in a text",
	}, s.handleCount)
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	topK := input.TopK
	if topK == 0 {
		topK = s.deps.DefaultTopK
	}
	result, err := s.deps.Searcher.Execute(ctx, parser.Query{
		Text:   input.Query,
		Boosts: s.deps.Boosts,
		Limit:  topK,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{
		Results:   make([]SearchHit, len(result.Results)),
		TotalHits: result.TotalHits,
	}
	for i, hit := range result.Results {
		out.Results[i] = SearchHit{
			Filename: hit.Fields["filename"],
			Title:    hit.Fields["title"],
			Score:    hit.Score,
			Content:  hit.Fields["content"],
		}
	}
	return nil, out, nil
}

func (s *Server) handleScrape(ctx context.Context, _ *mcp.CallToolRequest, input ScrapeInput) (*mcp.CallToolResult, ScrapeOutput, error) {
	content, err := s.deps.Fetcher.Fetch(ctx, strings.TrimSpace(input.URL))
	if err != nil {
		return nil, ScrapeOutput{}, fmt.Errorf("fetching content: %w", err)
	}
	return nil, ScrapeOutput{Content: content}, nil
}

func (s *Server) handleCount(_ context.Context, _ *mcp.CallToolRequest, input CountInput) (*mcp.CallToolResult, CountOutput, error) {
	return nil, CountOutput{Count: s.countWord(input.Text, input.Word)}, nil
}

// countWord counts terms of text equal to the normalized form of word. A
// word that normalizes to nothing, or to more than one term, counts zero.
func (s *Server) countWord(text, word string) int {
	var target string
	n := 0
	for term := range s.counter.Terms(word) {
		target = term
		n++
	}
	if n != 1 {
		return 0
	}
	count := 0
	for term := range s.counter.Terms(text) {
		if term == target {
			count++
		}
	}
	return count
}
