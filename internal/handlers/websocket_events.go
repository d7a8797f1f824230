package handlers

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// Event severities for min_level filtering. Per-chunk progress is chatty
// and ranks below the lifecycle events; contradiction findings rank above.
const (
	severityDebug = iota
	severityInfo
	severityWarn
)

var eventSeverities = map[models.ProgressEventType]int{
	models.EventChunkProgress:      severityDebug,
	models.EventRunStateChanged:    severityInfo,
	models.EventPlanReady:          severityInfo,
	models.EventModuleStarted:      severityInfo,
	models.EventModuleCompleted:    severityInfo,
	models.EventReportReady:        severityInfo,
	models.EventContradictionFound: severityWarn,
}

// ProgressSubscriber bridges pipeline progress events to websocket clients
// with config-driven filtering and throttling. High-frequency events such as
// chunk_progress are rate limited so document preprocessing cannot flood
// connected clients.
type ProgressSubscriber struct {
	handler       *WebSocketHandler
	events        interfaces.EventService
	logger        arbor.ILogger
	minSeverity   int
	allowedEvents map[string]bool          // Whitelist of events to broadcast (empty = allow all)
	throttlers    map[string]*rate.Limiter // Rate limiters for high-frequency events
	unsubscribe   func()
}

// NewProgressSubscriber creates a progress subscriber and registers it with
// the event service.
func NewProgressSubscriber(handler *WebSocketHandler, events interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *ProgressSubscriber {
	s := &ProgressSubscriber{
		handler: handler,
		events:  events,
		logger:  logger,
	}

	if config != nil {
		s.minSeverity = parseSeverity(config.MinLevel)
	}

	// Empty whitelist means allow all events
	s.allowedEvents = make(map[string]bool)
	if config != nil && len(config.AllowedEvents) > 0 {
		for _, eventType := range config.AllowedEvents {
			s.allowedEvents[eventType] = true
		}
	}

	s.throttlers = make(map[string]*rate.Limiter)
	if config != nil && len(config.ThrottleIntervals) > 0 {
		for eventType, intervalStr := range config.ThrottleIntervals {
			duration, err := time.ParseDuration(intervalStr)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Failed to parse throttle interval - skipping throttler")
				continue
			}
			// One event per interval, burst of one
			s.throttlers[eventType] = rate.NewLimiter(rate.Every(duration), 1)
			logger.Debug().
				Str("event_type", eventType).
				Str("interval", intervalStr).
				Msg("Throttler initialized for event type")
		}
	}

	if events == nil {
		logger.Warn().Msg("ProgressSubscriber created with nil event service - subscription skipped")
		return s
	}

	s.unsubscribe = events.Subscribe(s.handleProgress)
	logger.Info().
		Int("allowed_events", len(s.allowedEvents)).
		Int("throttlers", len(s.throttlers)).
		Msg("ProgressSubscriber registered for pipeline events")

	return s
}

// handleProgress receives every pipeline event and broadcasts the ones that
// pass the severity, whitelist, and throttle checks.
func (s *ProgressSubscriber) handleProgress(ctx context.Context, event models.ProgressEvent) {
	if eventSeverities[event.Type] < s.minSeverity {
		return
	}
	if !s.shouldBroadcast(string(event.Type)) {
		return
	}

	s.handler.Broadcast(string(event.Type), event)
}

// shouldBroadcast checks the event type against the whitelist and its
// rate limiter.
func (s *ProgressSubscriber) shouldBroadcast(eventType string) bool {
	if len(s.allowedEvents) > 0 && !s.allowedEvents[eventType] {
		return false
	}

	if limiter, ok := s.throttlers[eventType]; ok {
		if !limiter.Allow() {
			s.logger.Debug().
				Str("event_type", eventType).
				Msg("Event throttled - rate limit exceeded")
			return false
		}
	}

	return true
}

// Unsubscribe detaches the subscriber from the event service.
func (s *ProgressSubscriber) Unsubscribe() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// parseSeverity maps a configured min_level string to its severity rank.
// Unknown values broadcast everything.
func parseSeverity(level string) int {
	switch level {
	case "info":
		return severityInfo
	case "warn", "warning":
		return severityWarn
	default:
		return severityDebug
	}
}
