package service

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/linklit/LinkLit/internal/app/model"
	"github.com/nats-io/nats.go"
)

// EventPublisher emits lifecycle events to NATS JetStream. Publishing is
// best-effort: callers log failures but never fail the request over one.
type EventPublisher struct {
	js nats.JetStreamContext
}

// NewEventPublisher creates a lifecycle event publisher.
func NewEventPublisher(js nats.JetStreamContext) *EventPublisher {
	return &EventPublisher{js: js}
}

// Publish emits one event on the lifecycle stream.
func (p *EventPublisher) Publish(eventType, slug, userID string) error {
	event := model.LifecycleEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Slug:       slug,
		UserID:     userID,
		OccurredAt: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.EventStreamSubject, data)
	return err
}
