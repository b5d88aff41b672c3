// Package medium provides the synchronous, size-limited key/value media the
// durable store persists into.
//
// # Overview
//
// A Medium behaves like a browser's localStorage: flat string keys, opaque
// byte values, and an optional byte quota. Writes that would push the total
// size (len(key)+len(value) summed over all items) past the quota fail with
// common.ErrQuotaExceeded and leave the medium unchanged.
//
// Two implementations are provided:
//
//   - Memory: a mutex-guarded map, used by tests and ephemeral runs.
//   - SQLite: a single kv table managed by embedded goose migrations.
//
// Media are shared by every component of a client process; only the durable
// store writes to them.
package medium

import "context"

// Medium is a flat key/value storage medium.
type Medium interface {
	// GetItem returns the value stored under key and whether it exists.
	GetItem(ctx context.Context, key string) ([]byte, bool, error)

	// SetItem inserts or replaces the value under key. It returns
	// common.ErrQuotaExceeded when the write does not fit.
	SetItem(ctx context.Context, key string, value []byte) error

	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(ctx context.Context, key string) error

	// Keys lists every key in the medium, in no particular order.
	Keys(ctx context.Context) ([]string, error)

	// Close releases underlying resources.
	Close() error
}

// ItemSize is the number of bytes an item occupies for quota purposes.
func ItemSize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}
