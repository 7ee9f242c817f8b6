// Package bolt persists a tenant's repositories in a single bbolt file.
// Suited to single-node deployments that need durability without an
// external database.
package bolt

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodes   = []byte("nodes")
	bucketFids    = []byte("fids")
	bucketUsers   = []byte("users")
	bucketGroups  = []byte("groups")
	bucketFeature = []byte("features")
	bucketAspects = []byte("aspects")
	bucketAPIKeys = []byte("apikeys")
	bucketAgents  = []byte("agents")
	bucketAudit   = []byte("audit")
)

// Store wraps one bbolt database holding every repository of a tenant.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the tenant database under dataDir.
func Open(dataDir, tenant string) (*Store, error) {
	path := filepath.Join(dataDir, tenant+".db")

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketNodes,
			bucketFids,
			bucketUsers,
			bucketGroups,
			bucketFeature,
			bucketAspects,
			bucketAPIKeys,
			bucketAgents,
			bucketAudit,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Nodes returns the node repository view of the store.
func (s *Store) Nodes() *NodeRepository {
	return &NodeRepository{db: s.db}
}

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepository {
	return &UserRepository{db: s.db}
}

// Groups returns the group repository view of the store.
func (s *Store) Groups() *GroupRepository {
	return &GroupRepository{db: s.db}
}

// Features returns the feature repository view of the store.
func (s *Store) Features() *FeatureRepository {
	return &FeatureRepository{db: s.db}
}

// Aspects returns the aspect repository view of the store.
func (s *Store) Aspects() *AspectRepository {
	return &AspectRepository{db: s.db}
}

// APIKeys returns the API key repository view of the store.
func (s *Store) APIKeys() *APIKeyRepository {
	return &APIKeyRepository{db: s.db}
}

// Agents returns the agent repository view of the store.
func (s *Store) Agents() *AgentRepository {
	return &AgentRepository{db: s.db}
}

// Audit returns the audit repository view of the store.
func (s *Store) Audit() *AuditRepository {
	return &AuditRepository{db: s.db}
}
