package interfaces

import (
	"context"
)

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchService performs the web searches the needs planner schedules.
type SearchService interface {
	// Search returns structured results for the query.
	Search(ctx context.Context, query string) ([]SearchResult, error)

	// Run executes the query and renders the results as a text block for
	// prompt assembly. Failures come back as descriptive text, never as an
	// error, so context assembly degrades instead of aborting the module.
	Run(ctx context.Context, query string) string
}
