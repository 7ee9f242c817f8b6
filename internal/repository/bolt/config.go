package bolt

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"antbox-backend/internal/domain/agent"
	"antbox-backend/internal/domain/apikey"
	"antbox-backend/internal/domain/aspect"
	"antbox-backend/internal/domain/feature"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

// bucketStore is the JSON-per-key core shared by the typed configuration
// repositories.
type bucketStore[T any] struct {
	db       *bolt.DB
	bucket   []byte
	notFound func(string) error
}

func (s bucketStore[T]) put(tx *bolt.Tx, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewUnknownError(fmt.Sprintf("encode %s", s.bucket), err)
	}
	return tx.Bucket(s.bucket).Put([]byte(key), data)
}

func (s bucketStore[T]) add(key string, v T) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(s.bucket).Get([]byte(key)) != nil {
			return errors.NewConflictError("already exists: " + key)
		}
		return s.put(tx, key, v)
	})
}

func (s bucketStore[T]) update(key string, v T) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(s.bucket).Get([]byte(key)) == nil {
			return s.notFound(key)
		}
		return s.put(tx, key, v)
	})
}

func (s bucketStore[T]) remove(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b.Get([]byte(key)) == nil {
			return s.notFound(key)
		}
		return b.Delete([]byte(key))
	})
}

func (s bucketStore[T]) get(key string) (T, error) {
	var v T
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(s.bucket).Get([]byte(key))
		if data == nil {
			return s.notFound(key)
		}
		return json.Unmarshal(data, &v)
	})
	return v, err
}

// list returns every value in key order (bolt iterates keys sorted).
func (s bucketStore[T]) list() ([]T, error) {
	var out []T
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(_, data []byte) error {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return errors.NewUnknownError(fmt.Sprintf("decode %s", s.bucket), err)
			}
			out = append(out, v)
			return nil
		})
	})
	return out, err
}

func (s bucketStore[T]) find(match func(T) bool) (T, bool, error) {
	var (
		found T
		ok    bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(_, data []byte) error {
			if ok {
				return nil
			}
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return errors.NewUnknownError(fmt.Sprintf("decode %s", s.bucket), err)
			}
			if match(v) {
				found, ok = v, true
			}
			return nil
		})
	})
	return found, ok, err
}

// scanConflict reports whether any stored value other than selfKey matches.
func scanConflict[T any](tx *bolt.Tx, bucket []byte, selfKey string, match func(T) bool) (bool, error) {
	conflict := false
	err := tx.Bucket(bucket).ForEach(func(k, data []byte) error {
		if conflict || string(k) == selfKey {
			return nil
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return errors.NewUnknownError(fmt.Sprintf("decode %s", bucket), err)
		}
		if match(v) {
			conflict = true
		}
		return nil
	})
	return conflict, err
}

// UserRepository stores users keyed by uuid; email uniqueness is checked in
// the same write transaction.
type UserRepository struct {
	db *bolt.DB
}

func (r *UserRepository) store() bucketStore[principal.User] {
	return bucketStore[principal.User]{
		db:       r.db,
		bucket:   bucketUsers,
		notFound: func(key string) error { return errors.NewUserNotFoundError(key) },
	}
}

func (r *UserRepository) writeChecked(u principal.User, mustExist bool) error {
	s := r.store()
	return r.db.Update(func(tx *bolt.Tx) error {
		exists := tx.Bucket(bucketUsers).Get([]byte(u.UUID)) != nil
		if mustExist && !exists {
			return errors.NewUserNotFoundError(u.UUID)
		}
		if !mustExist && exists {
			return errors.NewConflictError("already exists: " + u.UUID)
		}
		taken, err := scanConflict[principal.User](tx, bucketUsers, u.UUID,
			func(v principal.User) bool { return v.Email == u.Email })
		if err != nil {
			return err
		}
		if taken {
			return errors.NewConflictError("email already in use: " + u.Email)
		}
		return s.put(tx, u.UUID, u)
	})
}

func (r *UserRepository) Add(_ context.Context, u principal.User) error {
	return r.writeChecked(u, false)
}

func (r *UserRepository) Update(_ context.Context, u principal.User) error {
	return r.writeChecked(u, true)
}

func (r *UserRepository) Delete(_ context.Context, uuid string) error {
	return r.store().remove(uuid)
}

func (r *UserRepository) GetByUUID(_ context.Context, uuid string) (principal.User, error) {
	return r.store().get(uuid)
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (principal.User, error) {
	u, ok, err := r.store().find(func(v principal.User) bool { return v.Email == email })
	if err != nil {
		return principal.User{}, err
	}
	if !ok {
		return principal.User{}, errors.NewUserNotFoundError(email)
	}
	return u, nil
}

func (r *UserRepository) List(_ context.Context) ([]principal.User, error) {
	return r.store().list()
}

// GroupRepository stores groups keyed by uuid.
type GroupRepository struct {
	db *bolt.DB
}

func (r *GroupRepository) store() bucketStore[principal.Group] {
	return bucketStore[principal.Group]{
		db:       r.db,
		bucket:   bucketGroups,
		notFound: func(key string) error { return errors.NewGroupNotFoundError(key) },
	}
}

func (r *GroupRepository) Add(_ context.Context, g principal.Group) error { return r.store().add(g.UUID, g) }
func (r *GroupRepository) Update(_ context.Context, g principal.Group) error {
	return r.store().update(g.UUID, g)
}
func (r *GroupRepository) Delete(_ context.Context, uuid string) error { return r.store().remove(uuid) }
func (r *GroupRepository) GetByUUID(_ context.Context, uuid string) (principal.Group, error) {
	return r.store().get(uuid)
}
func (r *GroupRepository) List(_ context.Context) ([]principal.Group, error) {
	return r.store().list()
}

// FeatureRepository stores features keyed by uuid.
type FeatureRepository struct {
	db *bolt.DB
}

func (r *FeatureRepository) store() bucketStore[*feature.Feature] {
	return bucketStore[*feature.Feature]{
		db:       r.db,
		bucket:   bucketFeature,
		notFound: func(key string) error { return errors.NewFeatureNotFoundError(key) },
	}
}

func (r *FeatureRepository) Add(_ context.Context, f *feature.Feature) error {
	return r.store().add(f.UUID, f)
}
func (r *FeatureRepository) Update(_ context.Context, f *feature.Feature) error {
	return r.store().update(f.UUID, f)
}
func (r *FeatureRepository) Delete(_ context.Context, uuid string) error {
	return r.store().remove(uuid)
}
func (r *FeatureRepository) GetByUUID(_ context.Context, uuid string) (*feature.Feature, error) {
	return r.store().get(uuid)
}
func (r *FeatureRepository) List(_ context.Context) ([]*feature.Feature, error) {
	return r.store().list()
}

// AspectRepository stores aspect schemas keyed by uuid.
type AspectRepository struct {
	db *bolt.DB
}

func (r *AspectRepository) store() bucketStore[*aspect.Aspect] {
	return bucketStore[*aspect.Aspect]{
		db:       r.db,
		bucket:   bucketAspects,
		notFound: func(key string) error { return errors.NewAspectNotFoundError(key) },
	}
}

func (r *AspectRepository) Add(_ context.Context, a *aspect.Aspect) error {
	return r.store().add(a.UUID, a)
}
func (r *AspectRepository) Update(_ context.Context, a *aspect.Aspect) error {
	return r.store().update(a.UUID, a)
}
func (r *AspectRepository) Delete(_ context.Context, uuid string) error {
	return r.store().remove(uuid)
}
func (r *AspectRepository) GetByUUID(_ context.Context, uuid string) (*aspect.Aspect, error) {
	return r.store().get(uuid)
}
func (r *AspectRepository) List(_ context.Context) ([]*aspect.Aspect, error) {
	return r.store().list()
}

// APIKeyRepository stores keys keyed by uuid; secret uniqueness is checked
// in the same write transaction.
type APIKeyRepository struct {
	db *bolt.DB
}

func (r *APIKeyRepository) store() bucketStore[apikey.APIKey] {
	return bucketStore[apikey.APIKey]{
		db:       r.db,
		bucket:   bucketAPIKeys,
		notFound: func(key string) error { return errors.NewAPIKeyNotFoundError(key) },
	}
}

func (r *APIKeyRepository) Add(_ context.Context, k apikey.APIKey) error {
	s := r.store()
	return r.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketAPIKeys).Get([]byte(k.UUID)) != nil {
			return errors.NewConflictError("already exists: " + k.UUID)
		}
		taken, err := scanConflict[apikey.APIKey](tx, bucketAPIKeys, k.UUID,
			func(v apikey.APIKey) bool { return v.Secret == k.Secret })
		if err != nil {
			return err
		}
		if taken {
			return errors.NewConflictError("secret already in use")
		}
		return s.put(tx, k.UUID, k)
	})
}

func (r *APIKeyRepository) Delete(_ context.Context, uuid string) error {
	return r.store().remove(uuid)
}

func (r *APIKeyRepository) GetByUUID(_ context.Context, uuid string) (apikey.APIKey, error) {
	return r.store().get(uuid)
}

func (r *APIKeyRepository) GetBySecret(_ context.Context, secret string) (apikey.APIKey, error) {
	k, ok, err := r.store().find(func(v apikey.APIKey) bool { return v.Secret == secret })
	if err != nil {
		return apikey.APIKey{}, err
	}
	if !ok {
		return apikey.APIKey{}, errors.NewAPIKeyNotFoundError("by secret")
	}
	return k, nil
}

func (r *APIKeyRepository) List(_ context.Context) ([]apikey.APIKey, error) {
	return r.store().list()
}

// AgentRepository stores agents keyed by uuid.
type AgentRepository struct {
	db *bolt.DB
}

func (r *AgentRepository) store() bucketStore[*agent.Agent] {
	return bucketStore[*agent.Agent]{
		db:       r.db,
		bucket:   bucketAgents,
		notFound: func(key string) error { return errors.NewAgentNotFoundError(key) },
	}
}

func (r *AgentRepository) Add(_ context.Context, a *agent.Agent) error { return r.store().add(a.UUID, a) }
func (r *AgentRepository) Update(_ context.Context, a *agent.Agent) error {
	return r.store().update(a.UUID, a)
}
func (r *AgentRepository) Delete(_ context.Context, uuid string) error { return r.store().remove(uuid) }
func (r *AgentRepository) GetByUUID(_ context.Context, uuid string) (*agent.Agent, error) {
	return r.store().get(uuid)
}
func (r *AgentRepository) List(_ context.Context) ([]*agent.Agent, error) {
	return r.store().list()
}

var (
	_ repository.UserRepository    = (*UserRepository)(nil)
	_ repository.GroupRepository   = (*GroupRepository)(nil)
	_ repository.FeatureRepository = (*FeatureRepository)(nil)
	_ repository.AspectRepository  = (*AspectRepository)(nil)
	_ repository.APIKeyRepository  = (*APIKeyRepository)(nil)
	_ repository.AgentRepository   = (*AgentRepository)(nil)
)
