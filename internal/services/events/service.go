// Package events fans pipeline progress out to subscribers with a simple
// pub/sub service. Delivery is asynchronous so a slow subscriber never
// stalls the analysis pipeline.
package events

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// Service implements interfaces.EventService.
type Service struct {
	mu          sync.RWMutex
	subscribers map[int]interfaces.ProgressHandler
	nextID      int
	closed      bool
	logger      arbor.ILogger
}

// NewService creates a new event service.
func NewService(logger arbor.ILogger) *Service {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Service{
		subscribers: make(map[int]interfaces.ProgressHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler and returns its unsubscribe function.
// A nil handler is ignored and yields a no-op unsubscribe.
func (s *Service) Subscribe(handler interfaces.ProgressHandler) func() {
	if handler == nil {
		return func() {}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[id] = handler

	s.logger.Debug().
		Int("subscriber_count", len(s.subscribers)).
		Msg("Progress handler subscribed")

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
		s.logger.Debug().
			Int("subscriber_count", len(s.subscribers)).
			Msg("Progress handler unsubscribed")
	}
}

// Publish delivers the event to all subscribers asynchronously. Each
// handler runs in its own panic-protected goroutine.
func (s *Service) Publish(ctx context.Context, event models.ProgressEvent) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	handlers := make([]interfaces.ProgressHandler, 0, len(s.subscribers))
	for _, handler := range s.subscribers {
		handlers = append(handlers, handler)
	}
	s.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	for _, handler := range handlers {
		h := handler
		common.SafeGoWithContext(ctx, s.logger, "publishProgressEvent", func() {
			h(ctx, event)
		})
	}
}

// Close drops all subscribers. Publish becomes a no-op afterwards.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.subscribers = make(map[int]interfaces.ProgressHandler)
	s.logger.Info().Msg("Event service closed")

	return nil
}
