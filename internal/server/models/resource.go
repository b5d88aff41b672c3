// Package models defines server-side data models persisted in the database.
package models

import (
	"encoding/json"
	"time"
)

// ResourceKey addresses one synced record of one user.
type ResourceKey struct {
	UserID string
	Type   string
	ID     string
}

// Resource is the stored, versioned state of a synced record. Version starts
// at 1 and grows by one on every accepted write.
type Resource struct {
	ResourceKey
	Version   int
	Data      json.RawMessage
	UpdatedAt time.Time
}
