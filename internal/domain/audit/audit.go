// Package audit models the append-only history streams derived from
// node lifecycle events. One stream per node, sequence monotonically
// increasing per stream.
package audit

import (
	"time"

	"antbox-backend/internal/domain/shared"
)

// Entry is one appended audit record.
type Entry struct {
	EventID    string                 `json:"eventId"`
	EventType  string                 `json:"eventType"`
	OccurredOn time.Time              `json:"occurredOn"`
	UserEmail  string                 `json:"userEmail"`
	Tenant     string                 `json:"tenant"`
	Payload    map[string]interface{} `json:"payload"`
	Sequence   int64                  `json:"sequence"`
}

// Stream groups a node's entries under its identity. Mimetype rides
// along so readers can slice history by node kind.
type Stream struct {
	ID       string  `json:"id"`
	Mimetype string  `json:"mimetype"`
	Entries  []Entry `json:"entries"`
}

// DeletedRecord summarizes one node deletion for tombstone queries.
type DeletedRecord struct {
	UUID      string    `json:"uuid"`
	Title     string    `json:"title"`
	DeletedAt time.Time `json:"deletedAt"`
	DeletedBy string    `json:"deletedBy"`
}

// FromDomainEvent shapes a bus event into an entry. The sequence is
// assigned by the stream repository on append.
func FromDomainEvent(e shared.DomainEvent) Entry {
	return Entry{
		EventID:    e.EventID(),
		EventType:  e.EventType(),
		OccurredOn: e.OccurredOn(),
		UserEmail:  e.UserEmail(),
		Tenant:     e.Tenant(),
		Payload:    e.EventData(),
	}
}
