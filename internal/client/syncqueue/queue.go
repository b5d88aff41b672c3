package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/storage"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/idgen"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/timex"
)

const (
	PendingKey = "offline_queue"
	FailedKey  = "offline_failed"
)

var ErrActionNotFound = errors.New("queued action not found")

// Queue is the persistent offline action queue.
type Queue struct {
	store *storage.Store
	clock timex.Clock
	ids   idgen.Generator

	mu sync.Mutex
}

func NewQueue(store *storage.Store, clock timex.Clock, ids idgen.Generator) *Queue {
	return &Queue{store: store, clock: timex.OrReal(clock), ids: idgen.OrUUID(ids)}
}

func (q *Queue) load(ctx context.Context, key string) []models.QueuedAction {
	var list []models.QueuedAction
	q.store.Get(ctx, key, &list)
	return list
}

func (q *Queue) save(ctx context.Context, key string, list []models.QueuedAction) error {
	if len(list) == 0 {
		q.store.Remove(ctx, key)
		return nil
	}
	if !q.store.Set(ctx, key, list, storage.Options{Pinned: true}) {
		return fmt.Errorf("save %s: %w", key, common.ErrWriteFailed)
	}
	return nil
}

// Enqueue appends a to the pending list, assigning its ID, queue time and
// status. The stored action is returned.
func (q *Queue) Enqueue(ctx context.Context, a models.QueuedAction) (models.QueuedAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if a.ID == "" {
		a.ID = q.ids.New()
	}
	if a.QueuedAt.IsZero() {
		a.QueuedAt = q.clock.Now().UTC()
	}
	a.Status = models.ActionPending

	if err := q.save(ctx, PendingKey, append(q.load(ctx, PendingKey), a)); err != nil {
		return models.QueuedAction{}, err
	}
	return a, nil
}

// Pending returns the pending actions in enqueue order.
func (q *Queue) Pending(ctx context.Context) []models.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx, PendingKey)
}

// HasPendingFor reports whether an action for resourceKey is still pending.
func (q *Queue) HasPendingFor(ctx context.Context, resourceKey string) bool {
	for _, a := range q.Pending(ctx) {
		if a.ResourceKey() == resourceKey {
			return true
		}
	}
	return false
}

// Failed returns actions that will not be retried.
func (q *Queue) Failed(ctx context.Context) []models.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx, FailedKey)
}

// Remove deletes a pending action.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	list := q.load(ctx, PendingKey)
	out, ok := without(list, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrActionNotFound, id)
	}
	return q.save(ctx, PendingKey, out)
}

// Update replaces a pending action in place, keeping its position.
func (q *Queue) Update(ctx context.Context, a models.QueuedAction) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	list := q.load(ctx, PendingKey)
	for i := range list {
		if list[i].ID == a.ID {
			list[i] = a
			return q.save(ctx, PendingKey, list)
		}
	}
	return fmt.Errorf("%w: %s", ErrActionNotFound, a.ID)
}

// MarkFailed moves a pending action to the failed list.
func (q *Queue) MarkFailed(ctx context.Context, a models.QueuedAction, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, ok := without(q.load(ctx, PendingKey), a.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrActionNotFound, a.ID)
	}

	a.Status = models.ActionFailed
	a.LastError = reason
	if err := q.save(ctx, FailedKey, append(q.load(ctx, FailedKey), a)); err != nil {
		return err
	}
	return q.save(ctx, PendingKey, pending)
}

// DismissFailed forgets a failed action; an empty id dismisses all of them.
func (q *Queue) DismissFailed(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if id == "" {
		return q.save(ctx, FailedKey, nil)
	}
	out, ok := without(q.load(ctx, FailedKey), id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrActionNotFound, id)
	}
	return q.save(ctx, FailedKey, out)
}

// RetryFailed moves a failed action back to the end of the pending list
// with a fresh retry budget and queue time.
func (q *Queue) RetryFailed(ctx context.Context, id string) (models.QueuedAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	failed := q.load(ctx, FailedKey)
	var a models.QueuedAction
	found := false
	for _, f := range failed {
		if f.ID == id {
			a, found = f, true
			break
		}
	}
	if !found {
		return models.QueuedAction{}, fmt.Errorf("%w: %s", ErrActionNotFound, id)
	}

	a.Status = models.ActionPending
	a.RetryCount = 0
	a.LastError = ""
	a.NextAttemptAt = time.Time{}
	a.QueuedAt = q.clock.Now().UTC()

	if err := q.save(ctx, PendingKey, append(q.load(ctx, PendingKey), a)); err != nil {
		return models.QueuedAction{}, err
	}
	rest, _ := without(failed, id)
	return a, q.save(ctx, FailedKey, rest)
}

func without(list []models.QueuedAction, id string) ([]models.QueuedAction, bool) {
	out := make([]models.QueuedAction, 0, len(list))
	found := false
	for _, a := range list {
		if a.ID == id {
			found = true
			continue
		}
		out = append(out, a)
	}
	return out, found
}
