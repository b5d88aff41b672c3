// Package models defines client-side data models persisted by the PNR Watch
// sync core.
package models

import "encoding/json"

// StorageEntry is the persisted envelope around every value written through
// the durable store.
type StorageEntry struct {
	// Data is the JSON encoding of the stored value.
	Data json.RawMessage `json:"data"`

	// Timestamp is the write time in milliseconds since the epoch.
	Timestamp int64 `json:"timestamp"`

	// Version is the record version supplied by the writer.
	Version int `json:"version"`

	// TTL is the lifetime in milliseconds; zero means no expiry.
	TTL int64 `json:"ttl,omitempty"`

	// Checksum is the rolling hash of Data, verified on every read.
	Checksum string `json:"checksum"`

	// Pinned entries are never chosen for eviction.
	Pinned bool `json:"pinned,omitempty"`
}

// Expired reports whether the entry is past its TTL at nowMillis.
func (e StorageEntry) Expired(nowMillis int64) bool {
	return e.TTL > 0 && nowMillis-e.Timestamp > e.TTL
}
