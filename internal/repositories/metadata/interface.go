// Package metadata stores small named blobs (verifier salt, hash, KDF
// parameters, vault id) in the vault_meta table of the local database.
package metadata

import (
	"context"
)

// Repository is a key/value store over vault_meta.
type Repository interface {
	// Get returns (nil, nil) for a missing name.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put upserts every pair of values.
	Put(ctx context.Context, values map[string][]byte) error
	List(ctx context.Context) (map[string][]byte, error)
	// Delete removes the named rows; missing names are ignored.
	Delete(ctx context.Context, names ...string) error
}
