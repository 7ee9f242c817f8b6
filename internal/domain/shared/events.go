package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent represents an important business occurrence in the domain.
type DomainEvent interface {
	// EventID returns a unique identifier for this event instance
	EventID() string

	// EventType returns the type of event (e.g., "NodeCreated", "NodeUpdated")
	EventType() string

	// AggregateID returns the uuid of the node that generated this event
	AggregateID() string

	// UserEmail returns the principal that triggered this event
	UserEmail() string

	// Tenant returns the tenant the event belongs to
	Tenant() string

	// OccurredOn returns when the event occurred
	OccurredOn() time.Time

	// EventData returns the event-specific payload
	EventData() map[string]interface{}
}

// BaseEvent provides common functionality for all domain events.
type BaseEvent struct {
	eventID     string
	eventType   string
	aggregateID string
	userEmail   string
	tenant      string
	occurredOn  time.Time
}

// EventID returns the unique event identifier.
func (e BaseEvent) EventID() string {
	return e.eventID
}

// EventType returns the type of event.
func (e BaseEvent) EventType() string {
	return e.eventType
}

// AggregateID returns the aggregate identifier.
func (e BaseEvent) AggregateID() string {
	return e.aggregateID
}

// UserEmail returns the principal that triggered the event.
func (e BaseEvent) UserEmail() string {
	return e.userEmail
}

// Tenant returns the owning tenant.
func (e BaseEvent) Tenant() string {
	return e.tenant
}

// OccurredOn returns the event timestamp.
func (e BaseEvent) OccurredOn() time.Time {
	return e.occurredOn
}

// NewBaseEvent creates the common portion of a domain event.
func NewBaseEvent(eventType, aggregateID, userEmail, tenant string) BaseEvent {
	return BaseEvent{
		eventID:     uuid.New().String(),
		eventType:   eventType,
		aggregateID: aggregateID,
		userEmail:   userEmail,
		tenant:      tenant,
		occurredOn:  time.Now().UTC(),
	}
}
