package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/medium"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/logging"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/timex"
)

const (
	// Namespace prefixes every key the store writes to its medium.
	Namespace = "pnr_watch_"

	// DefaultCapacity is the capacity ceiling used when none is configured.
	DefaultCapacity int64 = 5 * 1024 * 1024
)

// Store is the namespaced durable key/value store.
type Store struct {
	medium   medium.Medium
	capacity int64
	clock    timex.Clock
	log      logging.Logger

	// mu serialises writes so capacity accounting and eviction see a
	// consistent view of the medium.
	mu sync.Mutex
}

// New returns a Store over m. A non-positive capacity selects
// DefaultCapacity; nil clock and logger fall back to defaults.
func New(m medium.Medium, capacity int64, clock timex.Clock, logger logging.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		medium:   m,
		capacity: capacity,
		clock:    timex.OrReal(clock),
		log:      logging.OrNop(logger).With("module", "storage"),
	}
}

// Capacity returns the configured capacity ceiling in bytes.
func (s *Store) Capacity() int64 { return s.capacity }

func fullKey(key string) string { return Namespace + key }

// Set stores data under key. It reports whether the write was accepted.
func (s *Store) Set(ctx context.Context, key string, data any, opts Options) bool {
	if err := s.set(ctx, key, data, opts); err != nil {
		s.log.Warn(ctx, "set failed", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) set(ctx context.Context, key string, data any, opts Options) error {
	if key == "" {
		return errors.New("empty key")
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode data: %w", err)
	}

	entry := models.StorageEntry{
		Data:      encoded,
		Timestamp: timex.UnixMilli(s.clock.Now()),
		Version:   opts.Version,
		TTL:       opts.TTL.Milliseconds(),
		Checksum:  Checksum(string(encoded)),
		Pinned:    opts.Pinned,
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	fk := fullKey(key)
	size := medium.ItemSize(fk, value)
	if size > s.capacity {
		return fmt.Errorf("%w: entry of %d bytes exceeds capacity %d", common.ErrQuotaExceeded, size, s.capacity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.scan(ctx)
	if err != nil {
		return err
	}

	var used int64
	for _, it := range items {
		if it.fullKey != fk {
			used += it.size
		}
	}
	if used+size > s.capacity {
		if err := s.evict(ctx, items, fk, used+size-s.capacity); err != nil {
			return err
		}
	}

	err = s.medium.SetItem(ctx, fk, value)
	if errors.Is(err, common.ErrQuotaExceeded) {
		// the medium is shared and may be fuller than our own accounting
		s.log.Info(ctx, "medium quota exceeded, evicting", "key", key)
		if items, err = s.scan(ctx); err != nil {
			return err
		}
		if err := s.evict(ctx, items, fk, size); err != nil {
			return err
		}
		err = s.medium.SetItem(ctx, fk, value)
	}
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

type item struct {
	fullKey   string
	size      int64
	timestamp int64
	pinned    bool
}

// scan reads every namespaced item. Undecodable entries get a zero
// timestamp so they are evicted first.
func (s *Store) scan(ctx context.Context) ([]item, error) {
	keys, err := s.medium.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	items := make([]item, 0, len(keys))
	for _, k := range keys {
		if !strings.HasPrefix(k, Namespace) {
			continue
		}
		raw, ok, err := s.medium.GetItem(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", k, err)
		}
		if !ok {
			continue
		}
		it := item{fullKey: k, size: medium.ItemSize(k, raw)}
		var e models.StorageEntry
		if json.Unmarshal(raw, &e) == nil {
			it.timestamp = e.Timestamp
			it.pinned = e.Pinned
		}
		items = append(items, it)
	}
	return items, nil
}

// evict removes the oldest unpinned items other than keep until at least
// need bytes have been reclaimed.
func (s *Store) evict(ctx context.Context, items []item, keep string, need int64) error {
	sorted := append([]item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].timestamp < sorted[j].timestamp })

	var freed int64
	for _, it := range sorted {
		if freed >= need {
			break
		}
		if it.fullKey == keep || it.pinned {
			continue
		}
		if err := s.medium.RemoveItem(ctx, it.fullKey); err != nil {
			return fmt.Errorf("evict %s: %w", it.fullKey, err)
		}
		freed += it.size
		s.log.Debug(ctx, "evicted", "key", strings.TrimPrefix(it.fullKey, Namespace), "size", it.size)
	}
	if freed < need {
		return fmt.Errorf("%w: reclaimed %d of %d bytes", common.ErrQuotaExceeded, freed, need)
	}
	return nil
}

// Entry returns the verified envelope stored under key.
func (s *Store) Entry(ctx context.Context, key string) (models.StorageEntry, bool) {
	fk := fullKey(key)
	raw, ok, err := s.medium.GetItem(ctx, fk)
	if err != nil {
		s.log.Warn(ctx, "get failed", "key", key, "error", err)
		return models.StorageEntry{}, false
	}
	if !ok {
		return models.StorageEntry{}, false
	}

	var e models.StorageEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		s.discard(ctx, key, "undecodable")
		return models.StorageEntry{}, false
	}
	if e.Expired(timex.UnixMilli(s.clock.Now())) {
		s.discard(ctx, key, "expired")
		return models.StorageEntry{}, false
	}
	if Checksum(string(e.Data)) != e.Checksum {
		s.discard(ctx, key, "checksum mismatch")
		return models.StorageEntry{}, false
	}
	return e, true
}

func (s *Store) discard(ctx context.Context, key, reason string) {
	s.log.Debug(ctx, "discarding entry", "key", key, "reason", reason)
	s.Remove(ctx, key)
}

// Get decodes the value stored under key into dst.
func (s *Store) Get(ctx context.Context, key string, dst any) bool {
	e, ok := s.Entry(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		s.log.Warn(ctx, "decode failed", "key", key, "error", err)
		return false
	}
	return true
}

// Has reports whether a valid entry exists under key.
func (s *Store) Has(ctx context.Context, key string) bool {
	_, ok := s.Entry(ctx, key)
	return ok
}

// Remove deletes key. It reports whether the medium accepted the delete.
func (s *Store) Remove(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.medium.RemoveItem(ctx, fullKey(key)); err != nil {
		s.log.Warn(ctx, "remove failed", "key", key, "error", err)
		return false
	}
	return true
}

// Keys lists the un-namespaced keys starting with prefix, sorted.
func (s *Store) Keys(ctx context.Context, prefix string) []string {
	all, err := s.medium.Keys(ctx)
	if err != nil {
		s.log.Warn(ctx, "keys failed", "error", err)
		return nil
	}

	var keys []string
	for _, k := range all {
		if !strings.HasPrefix(k, Namespace) {
			continue
		}
		k = strings.TrimPrefix(k, Namespace)
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Clear removes every namespaced key and leaves foreign keys untouched.
func (s *Store) Clear(ctx context.Context) bool {
	keys := s.Keys(ctx, "")

	s.mu.Lock()
	defer s.mu.Unlock()

	ok := true
	for _, k := range keys {
		if err := s.medium.RemoveItem(ctx, fullKey(k)); err != nil {
			s.log.Warn(ctx, "clear failed", "key", k, "error", err)
			ok = false
		}
	}
	return ok
}
