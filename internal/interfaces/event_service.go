package interfaces

import (
	"context"

	"github.com/ternarybob/aestimo/internal/models"
)

// ProgressHandler receives pipeline progress events.
type ProgressHandler func(ctx context.Context, event models.ProgressEvent)

// EventService fans pipeline progress out to subscribers (websocket hub,
// log sinks). Publish is fire-and-forget; slow subscribers must not stall
// the pipeline.
type EventService interface {
	// Subscribe registers a handler and returns its unsubscribe function.
	Subscribe(handler ProgressHandler) (unsubscribe func())

	// Publish delivers the event to all subscribers asynchronously.
	Publish(ctx context.Context, event models.ProgressEvent)

	// Close shuts down the event service
	Close() error
}
