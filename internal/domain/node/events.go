package node

import (
	"antbox-backend/internal/domain/shared"
)

// Event types emitted by node lifecycle transitions.
const (
	EventNodeCreated = "NodeCreated"
	EventNodeUpdated = "NodeUpdated"
	EventNodeDeleted = "NodeDeleted"
)

// NodeEvent is implemented by the three lifecycle events. The
// mimetype travels with the event so stream consumers can key without
// a repository lookup.
type NodeEvent interface {
	shared.DomainEvent
	NodeMimetype() string
}

// CreatedEvent is fired when a node is created. The payload carries a
// full snapshot so subscribers can match filters against it.
type CreatedEvent struct {
	shared.BaseEvent
	Node *Node
}

// NewCreatedEvent builds the event for a freshly persisted node.
func NewCreatedEvent(n *Node, userEmail string) *CreatedEvent {
	return &CreatedEvent{
		BaseEvent: shared.NewBaseEvent(EventNodeCreated, n.UUID, userEmail, n.Tenant),
		Node:      n,
	}
}

// EventData returns the node snapshot.
func (e *CreatedEvent) EventData() map[string]interface{} {
	return e.Node.Map()
}

// NodeMimetype returns the created node's mimetype.
func (e *CreatedEvent) NodeMimetype() string {
	return e.Node.Mimetype
}

// UpdatedEvent is fired after a successful metadata or body mutation.
// The payload carries only the attributes that changed.
type UpdatedEvent struct {
	shared.BaseEvent
	Mimetype  string
	Parent    string
	OldValues map[string]interface{}
	NewValues map[string]interface{}
}

// NewUpdatedEvent builds the event for a mutation diff.
func NewUpdatedEvent(n *Node, userEmail string, oldValues, newValues map[string]interface{}) *UpdatedEvent {
	return &UpdatedEvent{
		BaseEvent: shared.NewBaseEvent(EventNodeUpdated, n.UUID, userEmail, n.Tenant),
		Mimetype:  n.Mimetype,
		Parent:    n.Parent,
		OldValues: oldValues,
		NewValues: newValues,
	}
}

// EventData returns the mutation diff.
func (e *UpdatedEvent) EventData() map[string]interface{} {
	return map[string]interface{}{
		"uuid":      e.AggregateID(),
		"oldValues": e.OldValues,
		"newValues": e.NewValues,
	}
}

// NodeMimetype returns the updated node's mimetype.
func (e *UpdatedEvent) NodeMimetype() string {
	return e.Mimetype
}

// DeletedEvent is fired per deleted node, descendants included. The
// payload carries the final snapshot; after this event the node is
// gone from the repository.
type DeletedEvent struct {
	shared.BaseEvent
	Node *Node
}

// NewDeletedEvent builds the event for a removed node.
func NewDeletedEvent(n *Node, userEmail string) *DeletedEvent {
	return &DeletedEvent{
		BaseEvent: shared.NewBaseEvent(EventNodeDeleted, n.UUID, userEmail, n.Tenant),
		Node:      n,
	}
}

// EventData returns the final node snapshot.
func (e *DeletedEvent) EventData() map[string]interface{} {
	return e.Node.Map()
}

// NodeMimetype returns the deleted node's mimetype.
func (e *DeletedEvent) NodeMimetype() string {
	return e.Node.Mimetype
}
