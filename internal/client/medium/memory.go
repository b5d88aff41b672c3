package medium

import (
	"context"
	"sync"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
)

// Memory is an in-process Medium. A zero or negative quota means unlimited.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
	used  int64
	quota int64
}

func NewMemory(quota int64) *Memory {
	return &Memory{items: make(map[string][]byte), quota: quota}
}

func (m *Memory) GetItem(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) SetItem(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used
	if old, ok := m.items[key]; ok {
		used -= ItemSize(key, old)
	}
	used += ItemSize(key, value)

	if m.quota > 0 && used > m.quota {
		return common.ErrQuotaExceeded
	}

	m.items[key] = append([]byte(nil), value...)
	m.used = used
	return nil
}

func (m *Memory) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.items[key]; ok {
		m.used -= ItemSize(key, old)
		delete(m.items, key)
	}
	return nil
}

func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys, nil
}

// Put overwrites a raw item without quota checks. Tests use it to simulate
// external corruption of stored bytes.
func (m *Memory) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.items[key]; ok {
		m.used -= ItemSize(key, old)
	}
	m.items[key] = append([]byte(nil), value...)
	m.used += ItemSize(key, value)
}

func (m *Memory) Close() error { return nil }
