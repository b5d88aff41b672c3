package models

import (
	"encoding/json"
	"time"
)

// Preferences holds the user's settings as name -> JSON value, with the time
// each field was last written so concurrent edits can be merged per field.
type Preferences struct {
	Values         map[string]json.RawMessage `json:"values"`
	FieldUpdatedAt map[string]time.Time       `json:"fieldUpdatedAt,omitempty"`
}

// NewPreferences returns an empty, writable Preferences value.
func NewPreferences() Preferences {
	return Preferences{
		Values:         map[string]json.RawMessage{},
		FieldUpdatedAt: map[string]time.Time{},
	}
}

// Clone returns a deep copy.
func (p Preferences) Clone() Preferences {
	out := NewPreferences()
	for k, v := range p.Values {
		out.Values[k] = append(json.RawMessage(nil), v...)
	}
	for k, v := range p.FieldUpdatedAt {
		out.FieldUpdatedAt[k] = v
	}
	return out
}

// VersionedPreferences is the wire shape served by the sync API.
type VersionedPreferences struct {
	Version     int         `json:"version"`
	Preferences Preferences `json:"preferences"`
}
