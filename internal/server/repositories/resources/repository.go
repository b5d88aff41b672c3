// Package resources stores versioned sync records: PNR snapshots and
// preferences, one row per user, type and id.
package resources

import (
	"context"
	"encoding/json"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/models"
)

// Repository persists resources with optimistic versioning. Every method is
// atomic on its own.
//
// Errors: common.ErrNotFound when the row is missing (or, for Update and
// Delete, when the expected version does not match), common.ErrVersionConflict
// when Create meets an existing row.
type Repository interface {
	Get(ctx context.Context, key models.ResourceKey) (models.Resource, error)
	// Create inserts the row at version 1.
	Create(ctx context.Context, key models.ResourceKey, data json.RawMessage) (int, error)
	// Update writes data if the stored version equals expected and returns
	// the new version.
	Update(ctx context.Context, key models.ResourceKey, data json.RawMessage, expected int) (int, error)
	// Upsert writes data unconditionally.
	Upsert(ctx context.Context, key models.ResourceKey, data json.RawMessage) (int, error)
	// Delete removes the row. A negative expected deletes unconditionally.
	Delete(ctx context.Context, key models.ResourceKey, expected int) error
}
