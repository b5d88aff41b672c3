package resources

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/models"
)

// MemoryRepository keeps resources in process memory. Used for development
// servers and tests.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[models.ResourceKey]models.Resource
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[models.ResourceKey]models.Resource), now: time.Now}
}

func clone(data json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), data...)
}

func (r *MemoryRepository) Get(_ context.Context, key models.ResourceKey) (models.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.rows[key]
	if !ok {
		return models.Resource{}, common.ErrNotFound
	}
	res.Data = clone(res.Data)
	return res, nil
}

func (r *MemoryRepository) put(key models.ResourceKey, data json.RawMessage, version int) int {
	r.rows[key] = models.Resource{ResourceKey: key, Version: version, Data: clone(data), UpdatedAt: r.now().UTC()}
	return version
}

func (r *MemoryRepository) Create(_ context.Context, key models.ResourceKey, data json.RawMessage) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[key]; ok {
		return 0, common.ErrVersionConflict
	}
	return r.put(key, data, 1), nil
}

func (r *MemoryRepository) Update(_ context.Context, key models.ResourceKey, data json.RawMessage, expected int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.rows[key]
	if !ok || cur.Version != expected {
		return 0, common.ErrNotFound
	}
	return r.put(key, data, cur.Version+1), nil
}

func (r *MemoryRepository) Upsert(_ context.Context, key models.ResourceKey, data json.RawMessage) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.put(key, data, r.rows[key].Version+1), nil
}

func (r *MemoryRepository) Delete(_ context.Context, key models.ResourceKey, expected int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.rows[key]
	if !ok || (expected >= 0 && cur.Version != expected) {
		return common.ErrNotFound
	}
	delete(r.rows, key)
	return nil
}
