// Package idgen abstracts unique ID generation so tests are deterministic.
package idgen

import "github.com/google/uuid"

// Generator produces unique identifiers.
type Generator interface {
	New() string
}

// UUID produces random UUIDs.
type UUID struct{}

func (UUID) New() string { return uuid.NewString() }

// OrUUID returns g, or UUID when g is nil.
func OrUUID(g Generator) Generator {
	if g == nil {
		return UUID{}
	}
	return g
}
