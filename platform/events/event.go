// Package events carries in-process notifications between modules, so a
// module can react to another's state changes without importing it.
package events

import (
	"context"
	"time"
)

// Event is anything published on a Bus. Names are dotted and scoped by the
// owning module, for example "scoring.model.trained".
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent is embedded by concrete events to supply OccurredAt.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps an event with the current UTC time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

// Handler reacts to one event. A returned error is logged by async
// delivery and returned by PublishSync.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc lets a plain function subscribe.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus routes events to the handlers subscribed under their name.
type Bus interface {
	// Publish delivers in the background, detached from ctx cancellation.
	Publish(ctx context.Context, event Event)
	// PublishSync delivers in subscription order and joins handler errors.
	PublishSync(ctx context.Context, event Event) error
	// Subscribe adds handler for events whose EventName equals eventName.
	Subscribe(eventName string, handler Handler)
}
