package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
)

// Broadcaster delivers one message to all connected clients
type Broadcaster interface {
	Broadcast(msgType string, payload interface{})
}

// EventSubscriber bridges the event bus to WebSocket clients with config-driven filtering and throttling
type EventSubscriber struct {
	broadcaster   Broadcaster
	eventService  interfaces.EventService
	logger        arbor.ILogger
	allowedEvents map[string]bool          // empty allows all
	intervals     map[string]time.Duration // throttle interval per event type

	mu         sync.Mutex
	throttlers map[string]*rate.Limiter // keyed by event type and run id
}

// NewEventSubscriber creates the subscriber and subscribes it to every event type
func NewEventSubscriber(broadcaster Broadcaster, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *EventSubscriber {
	s := &EventSubscriber{
		broadcaster:   broadcaster,
		eventService:  eventService,
		logger:        logger,
		allowedEvents: make(map[string]bool),
		intervals:     make(map[string]time.Duration),
		throttlers:    make(map[string]*rate.Limiter),
	}

	if config != nil {
		for _, eventType := range config.AllowedEvents {
			s.allowedEvents[eventType] = true
		}
		for eventType, intervalStr := range config.ThrottleIntervals {
			duration, err := time.ParseDuration(intervalStr)
			if err != nil || duration <= 0 {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Failed to parse throttle interval - skipping throttler")
				continue
			}
			s.intervals[eventType] = duration
		}
	}

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService - subscriptions will be skipped")
		return s
	}

	s.SubscribeAll()
	return s
}

// SubscribeAll registers the bridge for every event type
func (s *EventSubscriber) SubscribeAll() {
	for _, eventType := range interfaces.AllEventTypes {
		if err := s.eventService.Subscribe(eventType, s.handleEvent); err != nil {
			s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe to event")
		}
	}
	s.logger.Debug().Int("event_types", len(interfaces.AllEventTypes)).Msg("EventSubscriber registered for all events")
}

func (s *EventSubscriber) handleEvent(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(event.Type), runIDOf(event.Payload)) {
		return nil
	}
	s.broadcaster.Broadcast(string(event.Type), event.Payload)
	return nil
}

// shouldBroadcastEvent applies the whitelist, then the throttle. Throttles are tracked per run
// so progress from one run never starves another.
func (s *EventSubscriber) shouldBroadcastEvent(eventType, runID string) bool {
	if len(s.allowedEvents) > 0 && !s.allowedEvents[eventType] {
		return false
	}

	interval, ok := s.intervals[eventType]
	if !ok {
		return true
	}

	key := eventType + ":" + runID
	s.mu.Lock()
	limiter, ok := s.throttlers[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
		s.throttlers[key] = limiter
	}
	s.mu.Unlock()

	if !limiter.Allow() {
		s.logger.Trace().Str("event_type", eventType).Str("run_id", runID).Msg("Event throttled")
		return false
	}
	return true
}

func runIDOf(payload interface{}) string {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := m["run_id"].(string)
	return id
}
