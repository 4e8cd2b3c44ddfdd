package model

import "time"

// Event types published on the lifecycle stream.
const (
	EventLinkCreated    = "link.created"
	EventLinkDeleted    = "link.deleted"
	EventLinkExpired    = "link.expired"
	EventSubActivated   = "subscription.activated"
	EventSubDeactivated = "subscription.deactivated"
)

// LifecycleEvent records a link or subscription state change. Events are
// published to NATS JetStream and archived asynchronously; losing one is
// tolerable, they are never relied upon for correctness.
type LifecycleEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Slug       string    `json:"slug,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	EventStreamName     = "LINK_EVENTS"
	EventStreamSubject  = "links.events"
	EventConsumerName   = "event-archiver"
	EventStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
