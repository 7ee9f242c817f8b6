// Package repository defines the persistence interfaces between the domain
// services and their storage adapters. Every adapter (in-memory, bbolt,
// DynamoDB) is scoped to a single tenant; tenant isolation is achieved by
// construction, not by key prefixes in the interface.
//
// Error contract: lookups return the matching NotFound error from pkg/errors,
// uniqueness violations return ConflictError, everything else is wrapped as
// UnknownError by the adapter.
package repository

import (
	"context"

	"antbox-backend/internal/domain/agent"
	"antbox-backend/internal/domain/apikey"
	"antbox-backend/internal/domain/aspect"
	"antbox-backend/internal/domain/audit"
	"antbox-backend/internal/domain/feature"
	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/domain/principal"
)

// NodePage is one window of a node query result.
type NodePage = Page[*node.Node]

// NodeRepository persists the content tree of one tenant. Implementations
// enforce uuid and fid uniqueness and store deep copies so callers cannot
// mutate persisted state through retained pointers.
type NodeRepository interface {
	Add(ctx context.Context, n *node.Node) error
	Update(ctx context.Context, n *node.Node) error
	Delete(ctx context.Context, uuid string) error
	GetByID(ctx context.Context, uuid string) (*node.Node, error)
	GetByFid(ctx context.Context, fid string) (*node.Node, error)
	Filter(ctx context.Context, f filters.Filters, page PageRequest) (*NodePage, error)
}

// UserRepository stores user records keyed by both uuid and email.
type UserRepository interface {
	Add(ctx context.Context, u principal.User) error
	Update(ctx context.Context, u principal.User) error
	Delete(ctx context.Context, uuid string) error
	GetByUUID(ctx context.Context, uuid string) (principal.User, error)
	GetByEmail(ctx context.Context, email string) (principal.User, error)
	List(ctx context.Context) ([]principal.User, error)
}

// GroupRepository stores group records keyed by uuid.
type GroupRepository interface {
	Add(ctx context.Context, g principal.Group) error
	Update(ctx context.Context, g principal.Group) error
	Delete(ctx context.Context, uuid string) error
	GetByUUID(ctx context.Context, uuid string) (principal.Group, error)
	List(ctx context.Context) ([]principal.Group, error)
}

// FeatureRepository stores feature records keyed by uuid.
type FeatureRepository interface {
	Add(ctx context.Context, f *feature.Feature) error
	Update(ctx context.Context, f *feature.Feature) error
	Delete(ctx context.Context, uuid string) error
	GetByUUID(ctx context.Context, uuid string) (*feature.Feature, error)
	List(ctx context.Context) ([]*feature.Feature, error)
}

// AspectRepository stores aspect schemas keyed by uuid.
type AspectRepository interface {
	Add(ctx context.Context, a *aspect.Aspect) error
	Update(ctx context.Context, a *aspect.Aspect) error
	Delete(ctx context.Context, uuid string) error
	GetByUUID(ctx context.Context, uuid string) (*aspect.Aspect, error)
	List(ctx context.Context) ([]*aspect.Aspect, error)
}

// APIKeyRepository stores API keys. Keys are immutable once issued; rotation
// is delete plus create.
type APIKeyRepository interface {
	Add(ctx context.Context, k apikey.APIKey) error
	Delete(ctx context.Context, uuid string) error
	GetByUUID(ctx context.Context, uuid string) (apikey.APIKey, error)
	GetBySecret(ctx context.Context, secret string) (apikey.APIKey, error)
	List(ctx context.Context) ([]apikey.APIKey, error)
}

// AgentRepository stores agent definitions keyed by uuid.
type AgentRepository interface {
	Add(ctx context.Context, a *agent.Agent) error
	Update(ctx context.Context, a *agent.Agent) error
	Delete(ctx context.Context, uuid string) error
	GetByUUID(ctx context.Context, uuid string) (*agent.Agent, error)
	List(ctx context.Context) ([]*agent.Agent, error)
}

// AuditRepository persists append-only per-node event streams. Appends to
// the same stream are serialized and the assigned sequence increases
// monotonically within the stream.
type AuditRepository interface {
	// Append stamps the entry with the next sequence for the stream and
	// stores it. The stream is created on first append.
	Append(ctx context.Context, streamID, mimetype string, entry audit.Entry) (audit.Entry, error)
	GetStream(ctx context.Context, streamID string) (*audit.Stream, error)
	// ListStreams returns streams whose node mimetype matches; empty
	// mimetype matches all streams.
	ListStreams(ctx context.Context, mimetype string) ([]*audit.Stream, error)
}
