package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Schedule lifecycle event types. They double as AMQP routing keys.
const (
	ScheduleOpened         = "schedule.opened"
	ScheduleExtended       = "schedule.extended"
	ScheduleActorAdded     = "schedule.actor-added"
	ScheduleOptionsChanged = "schedule.options-changed"
	ScheduleDeactivated    = "schedule.deactivated"
)

// Event is a domain fact published after a state change has been committed.
type Event struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	ResourceType string                 `json:"resourceType"`
	ResourceID   string                 `json:"resourceId"`
	OccurredAt   time.Time              `json:"occurredAt"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType, resourceType, resourceID string, payload map[string]interface{}) Event {
	return Event{
		ID:           uuid.New().String(),
		Type:         eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OccurredAt:   time.Now().UTC(),
		Payload:      payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Fanout publishes every event to each of its publishers. All publishers are
// tried; their errors are joined.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
