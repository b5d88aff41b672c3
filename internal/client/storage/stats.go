package storage

import (
	"context"
	"sort"
	"strings"
)

// ItemStat describes one stored entry.
type ItemStat struct {
	Key       string `json:"key"`
	Size      int64  `json:"size"`
	Timestamp int64  `json:"timestamp"`
	Pinned    bool   `json:"pinned,omitempty"`
}

// Stats summarises the store's use of its medium.
type Stats struct {
	TotalBytes int64      `json:"totalBytes"`
	ItemCount  int        `json:"itemCount"`
	Remaining  int64      `json:"remaining"`
	Items      []ItemStat `json:"items"`
}

// Stats reports usage with items sorted newest first. A medium error yields
// an empty report with full remaining capacity.
func (s *Store) Stats(ctx context.Context) Stats {
	items, err := s.scan(ctx)
	if err != nil {
		s.log.Warn(ctx, "stats failed", "error", err)
		return Stats{Remaining: s.capacity}
	}

	st := Stats{Items: make([]ItemStat, 0, len(items))}
	for _, it := range items {
		st.TotalBytes += it.size
		st.Items = append(st.Items, ItemStat{
			Key:       strings.TrimPrefix(it.fullKey, Namespace),
			Size:      it.size,
			Timestamp: it.timestamp,
			Pinned:    it.pinned,
		})
	}
	sort.SliceStable(st.Items, func(i, j int) bool {
		if st.Items[i].Timestamp != st.Items[j].Timestamp {
			return st.Items[i].Timestamp > st.Items[j].Timestamp
		}
		return st.Items[i].Key < st.Items[j].Key
	})
	st.ItemCount = len(st.Items)
	st.Remaining = max(s.capacity-st.TotalBytes, 0)
	return st
}
