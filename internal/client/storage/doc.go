// Package storage implements the durable key/value store every other client
// component persists through.
//
// Each value is wrapped in a models.StorageEntry carrying the write time, a
// caller supplied version, an optional TTL and a checksum of the encoded
// data. Reads verify the checksum and the TTL; a corrupt or expired entry is
// deleted and reads as absent.
//
// All keys live under a fixed namespace prefix so the store can share a
// medium with unrelated data. When a write would exceed the capacity ceiling,
// the oldest namespaced entries (by write timestamp) are evicted until it
// fits. Reads are not tracked, so eviction is LRU-by-write.
//
// Store methods never return errors: failures are logged and reported as a
// false result.
package storage
