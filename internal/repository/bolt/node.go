package bolt

import (
	"context"
	"encoding/json"
	"sort"

	bolt "go.etcd.io/bbolt"

	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

// NodeRepository stores nodes as JSON values keyed by uuid, with a second
// bucket mapping fid to uuid for uniqueness and lookup.
type NodeRepository struct {
	db *bolt.DB
}

func (r *NodeRepository) Add(_ context.Context, n *node.Node) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		fids := tx.Bucket(bucketFids)

		if nodes.Get([]byte(n.UUID)) != nil {
			return errors.NewConflictError("node already exists: " + n.UUID)
		}
		if n.FID != "" {
			if owner := fids.Get([]byte(n.FID)); owner != nil && string(owner) != n.UUID {
				return errors.NewConflictError("fid already in use: " + n.FID)
			}
		}

		data, err := json.Marshal(n)
		if err != nil {
			return errors.NewUnknownError("encode node", err)
		}
		if err := nodes.Put([]byte(n.UUID), data); err != nil {
			return errors.NewUnknownError("store node", err)
		}
		if n.FID != "" {
			if err := fids.Put([]byte(n.FID), []byte(n.UUID)); err != nil {
				return errors.NewUnknownError("index fid", err)
			}
		}
		return nil
	})
}

func (r *NodeRepository) Update(_ context.Context, n *node.Node) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		fids := tx.Bucket(bucketFids)

		currentData := nodes.Get([]byte(n.UUID))
		if currentData == nil {
			return errors.NewNodeNotFoundError(n.UUID)
		}
		if n.FID != "" {
			if owner := fids.Get([]byte(n.FID)); owner != nil && string(owner) != n.UUID {
				return errors.NewConflictError("fid already in use: " + n.FID)
			}
		}

		var current node.Node
		if err := json.Unmarshal(currentData, &current); err != nil {
			return errors.NewUnknownError("decode node", err)
		}
		if current.FID != "" && current.FID != n.FID {
			if err := fids.Delete([]byte(current.FID)); err != nil {
				return errors.NewUnknownError("drop fid index", err)
			}
		}

		data, err := json.Marshal(n)
		if err != nil {
			return errors.NewUnknownError("encode node", err)
		}
		if err := nodes.Put([]byte(n.UUID), data); err != nil {
			return errors.NewUnknownError("store node", err)
		}
		if n.FID != "" {
			if err := fids.Put([]byte(n.FID), []byte(n.UUID)); err != nil {
				return errors.NewUnknownError("index fid", err)
			}
		}
		return nil
	})
}

func (r *NodeRepository) Delete(_ context.Context, uuid string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		data := nodes.Get([]byte(uuid))
		if data == nil {
			return errors.NewNodeNotFoundError(uuid)
		}

		var n node.Node
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.NewUnknownError("decode node", err)
		}
		if n.FID != "" {
			if err := tx.Bucket(bucketFids).Delete([]byte(n.FID)); err != nil {
				return errors.NewUnknownError("drop fid index", err)
			}
		}
		return nodes.Delete([]byte(uuid))
	})
}

func (r *NodeRepository) GetByID(_ context.Context, uuid string) (*node.Node, error) {
	var n node.Node
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNodes).Get([]byte(uuid))
		if data == nil {
			return errors.NewNodeNotFoundError(uuid)
		}
		return json.Unmarshal(data, &n)
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NodeRepository) GetByFid(_ context.Context, fid string) (*node.Node, error) {
	var n node.Node
	err := r.db.View(func(tx *bolt.Tx) error {
		uuid := tx.Bucket(bucketFids).Get([]byte(fid))
		if uuid == nil {
			return errors.NewNodeNotFoundError(fid)
		}
		data := tx.Bucket(bucketNodes).Get(uuid)
		if data == nil {
			return errors.NewNodeNotFoundError(fid)
		}
		return json.Unmarshal(data, &n)
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Filter scans the node bucket and evaluates the filters in memory, then
// windows the ordered matches. Ordering mirrors the in-memory adapter:
// title ascending, uuid tiebreak.
func (r *NodeRepository) Filter(_ context.Context, f filters.Filters, page repository.PageRequest) (*repository.NodePage, error) {
	var matched []*node.Node
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			var n node.Node
			if err := json.Unmarshal(v, &n); err != nil {
				return errors.NewUnknownError("decode node", err)
			}
			ok, err := f.IsSatisfiedBy(&n)
			if err != nil {
				return err
			}
			if ok {
				matched = append(matched, &n)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Title != matched[j].Title {
			return matched[i].Title < matched[j].Title
		}
		return matched[i].UUID < matched[j].UUID
	})
	return repository.PageOf(matched, page), nil
}

var _ repository.NodeRepository = (*NodeRepository)(nil)
