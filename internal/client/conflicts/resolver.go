package conflicts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/client"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/messaging"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/storage"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/idgen"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/logging"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/timex"
)

// Key is the durable store key holding pending conflicts.
const Key = "conflicts"

// ResourceHandler writes authoritative records of one resource type.
type ResourceHandler interface {
	Apply(ctx context.Context, id string, data json.RawMessage, version int) error
	SetVersion(ctx context.Context, id string, version int) error
	Delete(ctx context.Context, id string) error
	Merge(client, server json.RawMessage) (json.RawMessage, error)
}

// Sender re-issues mutations against the server.
type Sender interface {
	Send(ctx context.Context, req models.CapturedRequest) (client.Result, error)
}

var (
	ErrConflictNotFound = errors.New("conflict not found")
	ErrNoHandler        = errors.New("no handler for resource type")
	ErrMergeUnsupported = errors.New("merge is not defined for deletes")
)

type Resolver struct {
	store    *storage.Store
	sender   Sender
	poster   messaging.Poster
	policy   models.Strategy
	clock    timex.Clock
	ids      idgen.Generator
	log      logging.Logger
	handlers map[string]ResourceHandler

	// mu serialises every read-modify-write of the conflict list, including
	// the network round trip of a resolution.
	mu sync.Mutex
}

// NewResolver returns a resolver. policy is applied automatically to every
// detected conflict; leave it empty to wait for Resolve.
func NewResolver(store *storage.Store, sender Sender, poster messaging.Poster, policy models.Strategy,
	clock timex.Clock, ids idgen.Generator, logger logging.Logger) *Resolver {
	return &Resolver{
		store:    store,
		sender:   sender,
		poster:   poster,
		policy:   policy,
		clock:    timex.OrReal(clock),
		ids:      idgen.OrUUID(ids),
		log:      logging.OrNop(logger).With("module", "conflicts"),
		handlers: make(map[string]ResourceHandler),
	}
}

// Register installs the handler for resourceType. Not safe to call
// concurrently with resolution.
func (r *Resolver) Register(resourceType string, h ResourceHandler) {
	r.handlers[resourceType] = h
}

func (r *Resolver) handler(resourceType string) (ResourceHandler, error) {
	h, ok := r.handlers[resourceType]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoHandler, resourceType)
	}
	return h, nil
}

func (r *Resolver) load(ctx context.Context) []models.Conflict {
	var list []models.Conflict
	r.store.Get(ctx, Key, &list)
	return list
}

func (r *Resolver) save(ctx context.Context, list []models.Conflict) error {
	if len(list) == 0 {
		r.store.Remove(ctx, Key)
		return nil
	}
	if !r.store.Set(ctx, Key, list, storage.Options{Pinned: true}) {
		return fmt.Errorf("save conflicts: %w", common.ErrWriteFailed)
	}
	return nil
}

// Pending lists unresolved conflicts, oldest first.
func (r *Resolver) Pending(ctx context.Context) []models.Conflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

func (r *Resolver) Get(ctx context.Context, id string) (models.Conflict, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.load(ctx) {
		if c.ID == id {
			return c, true
		}
	}
	return models.Conflict{}, false
}

// PendingFor reports whether resourceType/resourceID has an unresolved
// conflict.
func (r *Resolver) PendingFor(ctx context.Context, resourceType, resourceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.load(ctx) {
		if c.ResourceType == resourceType && c.ResourceID == resourceID {
			return true
		}
	}
	return false
}

// Detect records a conflict for action and announces it. With an automatic
// policy the conflict is resolved immediately; a failed automatic
// resolution leaves it pending and is not returned as an error.
func (r *Resolver) Detect(ctx context.Context, action models.QueuedAction, ce *client.ConflictError) (models.Conflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := models.Conflict{
		ID:            r.ids.New(),
		ActionID:      action.ID,
		Operation:     action.Operation,
		ResourceType:  action.ResourceType,
		ResourceID:    action.ResourceID,
		ClientData:    action.Payload,
		ServerData:    ce.ServerData,
		ServerVersion: ce.ServerVersion,
		Request:       action.Request,
		Status:        models.ConflictPending,
		Timestamp:     r.clock.Now().UTC(),
	}

	list := append(r.load(ctx), c)
	if err := r.save(ctx, list); err != nil {
		return models.Conflict{}, err
	}

	r.log.Info(ctx, "conflict detected", "id", c.ID, "resource", action.ResourceKey(), "serverVersion", c.ServerVersion)
	r.poster.Post(messaging.ConflictDetected{ConflictID: c.ID, ResourceType: c.ResourceType, ResourceID: c.ResourceID})

	if r.policy != "" {
		if err := r.resolveLocked(ctx, c.ID, r.policy); err != nil {
			r.log.Warn(ctx, "automatic resolution failed", "id", c.ID, "strategy", r.policy, "error", err)
			if updated, ok := find(r.load(ctx), c.ID); ok {
				return updated, nil
			}
			return c, nil
		}
		c.Status = models.ConflictResolved
		c.Strategy = r.policy
	}
	return c, nil
}

// Resolve applies strategy to the conflict with id.
func (r *Resolver) Resolve(ctx context.Context, id string, strategy models.Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(ctx, id, strategy)
}

func (r *Resolver) resolveLocked(ctx context.Context, id string, strategy models.Strategy) error {
	list := r.load(ctx)
	c, ok := find(list, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConflictNotFound, id)
	}

	if err := r.apply(ctx, &c, strategy); err != nil {
		c.Strategy = strategy
		c.LastError = err.Error()
		if saveErr := r.save(ctx, replace(list, c)); saveErr != nil {
			r.log.Error(ctx, "record resolution failure", "id", id, "error", saveErr)
		}
		r.poster.Post(messaging.ConflictResolveFailed{ConflictID: id, Strategy: string(strategy), Error: err.Error()})
		return err
	}

	if err := r.save(ctx, without(list, id)); err != nil {
		// the authoritative record is written; the stale conflict will be
		// resolved again idempotently
		r.log.Error(ctx, "remove resolved conflict", "id", id, "error", err)
	}
	r.log.Info(ctx, "conflict resolved", "id", id, "strategy", strategy)
	r.poster.Post(messaging.ConflictResolved{
		ConflictID: id, ResourceType: c.ResourceType, ResourceID: c.ResourceID, Strategy: string(strategy),
	})
	return nil
}

func (r *Resolver) apply(ctx context.Context, c *models.Conflict, strategy models.Strategy) error {
	h, err := r.handler(c.ResourceType)
	if err != nil {
		return err
	}

	switch strategy {
	case models.StrategyServerWins:
		if isNull(c.ServerData) {
			return h.Delete(ctx, c.ResourceID)
		}
		return h.Apply(ctx, c.ResourceID, c.ServerData, c.ServerVersion)

	case models.StrategyClientWins:
		return r.reissue(ctx, h, c, c.ClientData)

	case models.StrategyMerge:
		if c.Operation == models.OperationDelete {
			return ErrMergeUnsupported
		}
		merged, err := h.Merge(c.ClientData, c.ServerData)
		if err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		return r.reissue(ctx, h, c, merged)

	default:
		return fmt.Errorf("unknown conflict strategy %q", strategy)
	}
}

// reissue sends body against the server's current version and stores the
// accepted result locally.
func (r *Resolver) reissue(ctx context.Context, h ResourceHandler, c *models.Conflict, body json.RawMessage) error {
	req := models.CapturedRequest{
		Method: c.Request.Method,
		URL:    c.Request.URL,
		Header: c.Request.Header.Clone(),
		Body:   body,
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("If-Match", client.FormatETag(c.ServerVersion))
	if req.Method == http.MethodPost && c.ServerVersion > 0 {
		// the resource exists now: overwrite it instead of creating it
		req.Method = http.MethodPut
	}

	res, err := r.sender.Send(ctx, req)
	if err != nil {
		var ce *client.ConflictError
		if errors.As(err, &ce) {
			// the server moved again: retry will target the new version
			c.ServerVersion = ce.ServerVersion
			c.ServerData = ce.ServerData
		}
		return err
	}

	if c.Operation == models.OperationDelete {
		return h.Delete(ctx, c.ResourceID)
	}
	version := res.Version
	if version == 0 {
		version = c.ServerVersion + 1
	}
	return h.Apply(ctx, c.ResourceID, body, version)
}

// Commit records the outcome of a replay the server accepted without
// conflict: the local record takes the server's new version.
//
// When superseded is set, later edits of the same resource are still queued
// and the local record already carries them, so only its version moves.
func (r *Resolver) Commit(ctx context.Context, action models.QueuedAction, version int, superseded bool) error {
	h, err := r.handler(action.ResourceType)
	if err != nil {
		return err
	}
	if version == 0 {
		if action.Operation == models.OperationDelete && !superseded {
			return h.Delete(ctx, action.ResourceID)
		}
		return nil
	}
	if superseded {
		return h.SetVersion(ctx, action.ResourceID, version)
	}
	if action.Operation == models.OperationDelete {
		return h.Delete(ctx, action.ResourceID)
	}
	if isNull(action.Payload) {
		return nil
	}
	return h.Apply(ctx, action.ResourceID, action.Payload, version)
}

func isNull(data json.RawMessage) bool {
	return len(data) == 0 || string(data) == "null"
}

func find(list []models.Conflict, id string) (models.Conflict, bool) {
	for _, c := range list {
		if c.ID == id {
			return c, true
		}
	}
	return models.Conflict{}, false
}

func replace(list []models.Conflict, c models.Conflict) []models.Conflict {
	out := make([]models.Conflict, len(list))
	for i, old := range list {
		if old.ID == c.ID {
			out[i] = c
		} else {
			out[i] = old
		}
	}
	return out
}

func without(list []models.Conflict, id string) []models.Conflict {
	out := make([]models.Conflict, 0, len(list))
	for _, c := range list {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
