package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventRunStateChanged    EventType = "run_state_changed"
	EventRunProgress        EventType = "run_progress"
	EventQueueItemEnqueued  EventType = "queue_item_enqueued"
	EventJobUpserted        EventType = "job_upserted"
	EventDiscoveryCompleted EventType = "discovery_completed"
	EventMonitorChecked     EventType = "monitor_checked"
	EventJobClosed          EventType = "job_closed"
	EventSweepCompleted     EventType = "sweep_completed"
)

// AllEventTypes lists every event type, used by subscribers that stream everything
var AllEventTypes = []EventType{
	EventRunStateChanged,
	EventRunProgress,
	EventQueueItemEnqueued,
	EventJobUpserted,
	EventDiscoveryCompleted,
	EventMonitorChecked,
	EventJobClosed,
	EventSweepCompleted,
}

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish delivers the event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes the event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	Close() error
}
