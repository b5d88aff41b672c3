package models

import (
	"encoding/json"
	"net/http"
	"time"
)

// Operation is the kind of mutation captured while offline.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// OperationForMethod maps an HTTP verb onto the mutation it performs.
func OperationForMethod(method string) (Operation, bool) {
	switch method {
	case http.MethodPost:
		return OperationCreate, true
	case http.MethodPut, http.MethodPatch:
		return OperationUpdate, true
	case http.MethodDelete:
		return OperationDelete, true
	default:
		return "", false
	}
}

// ActionStatus tracks a queued action through replay.
type ActionStatus string

const (
	ActionPending ActionStatus = "pending"
	ActionFailed  ActionStatus = "failed"
)

// CapturedRequest is a mutating HTTP request recorded verbatim for replay.
type CapturedRequest struct {
	Method string      `json:"method"`
	URL    string      `json:"url"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}

// QueuedAction is a mutation waiting for connectivity.
type QueuedAction struct {
	ID           string          `json:"id"`
	Operation    Operation       `json:"operation"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Request      CapturedRequest `json:"request"`

	// BaseVersion is the server version the client last saw; 0 when unknown.
	BaseVersion int `json:"baseVersion,omitempty"`

	QueuedAt      time.Time    `json:"queuedAt"`
	RetryCount    int          `json:"retryCount"`
	NextAttemptAt time.Time    `json:"nextAttemptAt,omitzero"`
	LastError     string       `json:"lastError,omitempty"`
	Status        ActionStatus `json:"status"`
}

// ResourceKey identifies the resource the action mutates.
func (a QueuedAction) ResourceKey() string {
	return a.ResourceType + "/" + a.ResourceID
}
