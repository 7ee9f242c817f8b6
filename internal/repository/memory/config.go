package memory

import (
	"context"
	"sort"
	"sync"

	"antbox-backend/internal/domain/agent"
	"antbox-backend/internal/domain/apikey"
	"antbox-backend/internal/domain/aspect"
	"antbox-backend/internal/domain/feature"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

// store is the shared map-under-mutex core of the typed configuration
// repositories. clone isolates stored values, notFound produces the
// entity-specific error.
type store[T any] struct {
	mu       sync.RWMutex
	items    map[string]T
	clone    func(T) T
	notFound func(key string) error
}

func newStore[T any](clone func(T) T, notFound func(string) error) *store[T] {
	return &store[T]{
		items:    make(map[string]T),
		clone:    clone,
		notFound: notFound,
	}
}

func (s *store[T]) add(key string, v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; ok {
		return errors.NewConflictError("already exists: " + key)
	}
	s.items[key] = s.clone(v)
	return nil
}

func (s *store[T]) update(key string, v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return s.notFound(key)
	}
	s.items[key] = s.clone(v)
	return nil
}

func (s *store[T]) remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return s.notFound(key)
	}
	delete(s.items, key)
	return nil
}

func (s *store[T]) get(key string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	if !ok {
		var zero T
		return zero, s.notFound(key)
	}
	return s.clone(v), nil
}

// list returns all values ordered by key.
func (s *store[T]) list() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.clone(s.items[k]))
	}
	return out
}

func (s *store[T]) find(match func(T) bool) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.items {
		if match(v) {
			return s.clone(v), true
		}
	}
	var zero T
	return zero, false
}

// UserRepository keeps users indexed by uuid with email uniqueness enforced
// on write.
type UserRepository struct {
	users *store[principal.User]
}

// NewUserRepository creates an empty user store.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: newStore(
			func(u principal.User) principal.User {
				u.Groups = append([]string(nil), u.Groups...)
				return u
			},
			func(key string) error { return errors.NewUserNotFoundError(key) },
		),
	}
}

func (r *UserRepository) Add(_ context.Context, u principal.User) error {
	if _, ok := r.users.find(func(v principal.User) bool { return v.Email == u.Email }); ok {
		return errors.NewConflictError("email already in use: " + u.Email)
	}
	return r.users.add(u.UUID, u)
}

func (r *UserRepository) Update(_ context.Context, u principal.User) error {
	if existing, ok := r.users.find(func(v principal.User) bool { return v.Email == u.Email }); ok && existing.UUID != u.UUID {
		return errors.NewConflictError("email already in use: " + u.Email)
	}
	return r.users.update(u.UUID, u)
}

func (r *UserRepository) Delete(_ context.Context, uuid string) error {
	return r.users.remove(uuid)
}

func (r *UserRepository) GetByUUID(_ context.Context, uuid string) (principal.User, error) {
	return r.users.get(uuid)
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (principal.User, error) {
	u, ok := r.users.find(func(v principal.User) bool { return v.Email == email })
	if !ok {
		return principal.User{}, errors.NewUserNotFoundError(email)
	}
	return u, nil
}

func (r *UserRepository) List(_ context.Context) ([]principal.User, error) {
	return r.users.list(), nil
}

// GroupRepository keeps groups keyed by uuid.
type GroupRepository struct {
	groups *store[principal.Group]
}

// NewGroupRepository creates an empty group store.
func NewGroupRepository() *GroupRepository {
	return &GroupRepository{
		groups: newStore(
			func(g principal.Group) principal.Group { return g },
			func(key string) error { return errors.NewGroupNotFoundError(key) },
		),
	}
}

func (r *GroupRepository) Add(_ context.Context, g principal.Group) error {
	return r.groups.add(g.UUID, g)
}

func (r *GroupRepository) Update(_ context.Context, g principal.Group) error {
	return r.groups.update(g.UUID, g)
}

func (r *GroupRepository) Delete(_ context.Context, uuid string) error {
	return r.groups.remove(uuid)
}

func (r *GroupRepository) GetByUUID(_ context.Context, uuid string) (principal.Group, error) {
	return r.groups.get(uuid)
}

func (r *GroupRepository) List(_ context.Context) ([]principal.Group, error) {
	return r.groups.list(), nil
}

// FeatureRepository keeps feature records keyed by uuid.
type FeatureRepository struct {
	features *store[*feature.Feature]
}

// NewFeatureRepository creates an empty feature store.
func NewFeatureRepository() *FeatureRepository {
	return &FeatureRepository{
		features: newStore(
			cloneFeature,
			func(key string) error { return errors.NewFeatureNotFoundError(key) },
		),
	}
}

func cloneFeature(f *feature.Feature) *feature.Feature {
	cp := *f
	cp.GroupsAllowed = append([]string(nil), f.GroupsAllowed...)
	cp.Parameters = append([]feature.Parameter(nil), f.Parameters...)
	cp.Filters = f.Filters.Clone()
	return &cp
}

func (r *FeatureRepository) Add(_ context.Context, f *feature.Feature) error {
	return r.features.add(f.UUID, f)
}

func (r *FeatureRepository) Update(_ context.Context, f *feature.Feature) error {
	return r.features.update(f.UUID, f)
}

func (r *FeatureRepository) Delete(_ context.Context, uuid string) error {
	return r.features.remove(uuid)
}

func (r *FeatureRepository) GetByUUID(_ context.Context, uuid string) (*feature.Feature, error) {
	return r.features.get(uuid)
}

func (r *FeatureRepository) List(_ context.Context) ([]*feature.Feature, error) {
	return r.features.list(), nil
}

// AspectRepository keeps aspect schemas keyed by uuid.
type AspectRepository struct {
	aspects *store[*aspect.Aspect]
}

// NewAspectRepository creates an empty aspect store.
func NewAspectRepository() *AspectRepository {
	return &AspectRepository{
		aspects: newStore(
			cloneAspect,
			func(key string) error { return errors.NewAspectNotFoundError(key) },
		),
	}
}

func cloneAspect(a *aspect.Aspect) *aspect.Aspect {
	cp := *a
	cp.Filters = a.Filters.Clone()
	cp.Properties = append([]aspect.Property(nil), a.Properties...)
	return &cp
}

func (r *AspectRepository) Add(_ context.Context, a *aspect.Aspect) error {
	return r.aspects.add(a.UUID, a)
}

func (r *AspectRepository) Update(_ context.Context, a *aspect.Aspect) error {
	return r.aspects.update(a.UUID, a)
}

func (r *AspectRepository) Delete(_ context.Context, uuid string) error {
	return r.aspects.remove(uuid)
}

func (r *AspectRepository) GetByUUID(_ context.Context, uuid string) (*aspect.Aspect, error) {
	return r.aspects.get(uuid)
}

func (r *AspectRepository) List(_ context.Context) ([]*aspect.Aspect, error) {
	return r.aspects.list(), nil
}

// APIKeyRepository keeps keys indexed by uuid with secret lookup.
type APIKeyRepository struct {
	keys *store[apikey.APIKey]
}

// NewAPIKeyRepository creates an empty API key store.
func NewAPIKeyRepository() *APIKeyRepository {
	return &APIKeyRepository{
		keys: newStore(
			func(k apikey.APIKey) apikey.APIKey { return k },
			func(key string) error { return errors.NewAPIKeyNotFoundError(key) },
		),
	}
}

func (r *APIKeyRepository) Add(_ context.Context, k apikey.APIKey) error {
	if _, ok := r.keys.find(func(v apikey.APIKey) bool { return v.Secret == k.Secret }); ok {
		return errors.NewConflictError("secret already in use")
	}
	return r.keys.add(k.UUID, k)
}

func (r *APIKeyRepository) Delete(_ context.Context, uuid string) error {
	return r.keys.remove(uuid)
}

func (r *APIKeyRepository) GetByUUID(_ context.Context, uuid string) (apikey.APIKey, error) {
	return r.keys.get(uuid)
}

func (r *APIKeyRepository) GetBySecret(_ context.Context, secret string) (apikey.APIKey, error) {
	k, ok := r.keys.find(func(v apikey.APIKey) bool { return v.Secret == secret })
	if !ok {
		return apikey.APIKey{}, errors.NewAPIKeyNotFoundError("by secret")
	}
	return k, nil
}

func (r *APIKeyRepository) List(_ context.Context) ([]apikey.APIKey, error) {
	return r.keys.list(), nil
}

// AgentRepository keeps agent definitions keyed by uuid.
type AgentRepository struct {
	agents *store[*agent.Agent]
}

// NewAgentRepository creates an empty agent store.
func NewAgentRepository() *AgentRepository {
	return &AgentRepository{
		agents: newStore(
			func(a *agent.Agent) *agent.Agent {
				cp := *a
				return &cp
			},
			func(key string) error { return errors.NewAgentNotFoundError(key) },
		),
	}
}

func (r *AgentRepository) Add(_ context.Context, a *agent.Agent) error {
	return r.agents.add(a.UUID, a)
}

func (r *AgentRepository) Update(_ context.Context, a *agent.Agent) error {
	return r.agents.update(a.UUID, a)
}

func (r *AgentRepository) Delete(_ context.Context, uuid string) error {
	return r.agents.remove(uuid)
}

func (r *AgentRepository) GetByUUID(_ context.Context, uuid string) (*agent.Agent, error) {
	return r.agents.get(uuid)
}

func (r *AgentRepository) List(_ context.Context) ([]*agent.Agent, error) {
	return r.agents.list(), nil
}

var (
	_ repository.UserRepository    = (*UserRepository)(nil)
	_ repository.GroupRepository   = (*GroupRepository)(nil)
	_ repository.FeatureRepository = (*FeatureRepository)(nil)
	_ repository.AspectRepository  = (*AspectRepository)(nil)
	_ repository.APIKeyRepository  = (*APIKeyRepository)(nil)
	_ repository.AgentRepository   = (*AgentRepository)(nil)
)
