package search

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

// NewSearchService creates the search collaborator from configuration.
// When web search is disabled the planner still runs, but every executed
// query resolves to the disabled sentinel text.
func NewSearchService(cfg common.SearchConfig, logger arbor.ILogger) interfaces.SearchService {
	if !cfg.Enabled {
		logger.Warn().Msg("Web search disabled via configuration")
		return NewDisabledService(logger)
	}

	logger.Info().
		Int("max_results", cfg.MaxResults).
		Bool("fetch_content", cfg.FetchContent).
		Msg("Initializing DuckDuckGo search service")
	return NewService(cfg, logger)
}
