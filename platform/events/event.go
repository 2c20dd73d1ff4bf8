// Package events provides event bus infrastructure for decoupled,
// event-driven communication between modules.
// This is part of the platform layer and contains no business logic.
package events

import (
	"context"
	"time"
)

// Event is the base interface all domain events must implement.
type Event interface {
	// EventName returns a unique identifier for the event type.
	EventName() string
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
	// Origin identifies the connection or request that caused the event, if any.
	Origin string `json:"origin,omitempty"`
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent creates a new base event with the current timestamp.
func NewBaseEvent(origin string) BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC(), Origin: origin}
}

// Handler processes events of a specific type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus carries job stage changes and snapshot writes from the reconciler to
// the modules that react to them.
type Bus interface {
	// Publish queues an event and returns at once, so it is safe to call
	// while holding the job cache lock. Queued events are handled in
	// publish order.
	Publish(ctx context.Context, event Event)

	// PublishSync runs every handler inline and joins their errors.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for the name returned by Event.EventName(),
	// such as "jobs.stage.changed".
	Subscribe(eventName string, handler Handler)
}
