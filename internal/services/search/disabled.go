package search

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

// ErrSearchDisabled is returned when web search is turned off in configuration.
var ErrSearchDisabled = fmt.Errorf("search service is disabled in configuration")

// DisabledService is a no-op implementation used when web search is turned
// off. Search returns ErrSearchDisabled; Run keeps the text-only contract
// and reports the condition as a block the prompt can carry.
type DisabledService struct {
	logger arbor.ILogger
}

// NewDisabledService creates a no-op search service.
func NewDisabledService(logger arbor.ILogger) *DisabledService {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &DisabledService{logger: logger}
}

// Search returns ErrSearchDisabled.
func (s *DisabledService) Search(ctx context.Context, query string) ([]interfaces.SearchResult, error) {
	s.logger.Warn().
		Str("query", query).
		Msg("Search attempted but service is disabled")
	return nil, ErrSearchDisabled
}

// Run reports the disabled condition as text.
func (s *DisabledService) Run(ctx context.Context, query string) string {
	s.logger.Warn().
		Str("query", query).
		Msg("Search attempted but service is disabled")
	return fmt.Sprintf("Error performing search: %v", ErrSearchDisabled)
}
