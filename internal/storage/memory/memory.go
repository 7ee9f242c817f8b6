// Package memory provides the in-memory blob store used by tests and
// single-process deployments without durability requirements.
package memory

import (
	"context"
	"sync"

	"antbox-backend/pkg/errors"
)

// Provider keeps blobs in a map. Safe for concurrent use.
type Provider struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewProvider creates an empty in-memory blob store.
func NewProvider() *Provider {
	return &Provider{blobs: make(map[string][]byte)}
}

// Put stores a copy of data under key, replacing any previous blob.
func (p *Provider) Put(_ context.Context, key string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blobs[key] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the blob stored under key.
func (p *Provider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	data, ok := p.blobs[key]
	if !ok {
		return nil, errors.NewNodeNotFoundError(key)
	}
	return append([]byte(nil), data...), nil
}

// Delete removes the blob stored under key.
func (p *Provider) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.blobs[key]; !ok {
		return errors.NewNodeNotFoundError(key)
	}
	delete(p.blobs, key)
	return nil
}
