// Package storage defines the blob store port the node service writes
// file bodies through. Keys are opaque and chosen by the caller
// (conventionally the node uuid); providers never interpret them.
//
// Error contract: Get and Delete of an absent key return NodeNotFound,
// adapter faults are wrapped as UnknownError.
package storage

import "context"

// Provider is the opaque blob store.
type Provider interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
