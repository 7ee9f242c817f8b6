// Package memory provides mutex-guarded in-memory repository adapters. They
// are the default persistence for tests and single-process deployments and
// double as the reference semantics for the bbolt and DynamoDB adapters.
package memory

import (
	"context"
	"sort"
	"sync"

	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

// NodeRepository stores nodes in maps keyed by uuid with a secondary fid
// index. All reads and writes deep-copy so callers never share state with
// the store.
type NodeRepository struct {
	mu    sync.RWMutex
	nodes map[string]*node.Node
	byFid map[string]string
}

// NewNodeRepository creates an empty node store.
func NewNodeRepository() *NodeRepository {
	return &NodeRepository{
		nodes: make(map[string]*node.Node),
		byFid: make(map[string]string),
	}
}

// Add stores a new node. Duplicate uuid or fid is a conflict.
func (r *NodeRepository) Add(_ context.Context, n *node.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[n.UUID]; ok {
		return errors.NewConflictError("node already exists: " + n.UUID)
	}
	if n.FID != "" {
		if owner, ok := r.byFid[n.FID]; ok && owner != n.UUID {
			return errors.NewConflictError("fid already in use: " + n.FID)
		}
	}

	r.nodes[n.UUID] = n.Clone()
	if n.FID != "" {
		r.byFid[n.FID] = n.UUID
	}
	return nil
}

// Update replaces a stored node.
func (r *NodeRepository) Update(_ context.Context, n *node.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.nodes[n.UUID]
	if !ok {
		return errors.NewNodeNotFoundError(n.UUID)
	}
	if n.FID != "" {
		if owner, ok := r.byFid[n.FID]; ok && owner != n.UUID {
			return errors.NewConflictError("fid already in use: " + n.FID)
		}
	}

	if current.FID != "" && current.FID != n.FID {
		delete(r.byFid, current.FID)
	}
	r.nodes[n.UUID] = n.Clone()
	if n.FID != "" {
		r.byFid[n.FID] = n.UUID
	}
	return nil
}

// Delete removes a node by uuid.
func (r *NodeRepository) Delete(_ context.Context, uuid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[uuid]
	if !ok {
		return errors.NewNodeNotFoundError(uuid)
	}
	if n.FID != "" {
		delete(r.byFid, n.FID)
	}
	delete(r.nodes, uuid)
	return nil
}

// GetByID returns a copy of the node with the given uuid.
func (r *NodeRepository) GetByID(_ context.Context, uuid string) (*node.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[uuid]
	if !ok {
		return nil, errors.NewNodeNotFoundError(uuid)
	}
	return n.Clone(), nil
}

// GetByFid returns a copy of the node with the given fid.
func (r *NodeRepository) GetByFid(_ context.Context, fid string) (*node.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uuid, ok := r.byFid[fid]
	if !ok {
		return nil, errors.NewNodeNotFoundError(fid)
	}
	return r.nodes[uuid].Clone(), nil
}

// Filter evaluates the filters against every stored node and returns the
// requested page. Results are ordered by title with uuid as tiebreak so
// page tokens remain coherent across calls.
func (r *NodeRepository) Filter(_ context.Context, f filters.Filters, page repository.PageRequest) (*repository.NodePage, error) {
	r.mu.RLock()
	all := make([]*node.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		all = append(all, n)
	}
	r.mu.RUnlock()

	matched := make([]*node.Node, 0, len(all))
	for _, n := range all {
		ok, err := f.IsSatisfiedBy(n)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, n.Clone())
		}
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
