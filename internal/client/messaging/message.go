package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names a message type on the wire.
type Kind string

const (
	KindSyncComplete          Kind = "OFFLINE_SYNC_COMPLETE"
	KindActionFailed          Kind = "OFFLINE_ACTION_FAILED"
	KindConflictDetected      Kind = "CONFLICT_DETECTED"
	KindConflictResolved      Kind = "CONFLICT_RESOLVED"
	KindConflictResolveFailed Kind = "CONFLICT_RESOLVE_FAILED"
	KindGetCacheSize          Kind = "GET_CACHE_SIZE"
	KindCacheSize             Kind = "CACHE_SIZE"
	KindNotificationClick     Kind = "NOTIFICATION_CLICK"
)

// Message is implemented by every concrete message type.
type Message interface {
	Kind() Kind
}

// SyncComplete reports a queued action replayed successfully.
type SyncComplete struct {
	ActionID     string `json:"actionId"`
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
	Version      int    `json:"version,omitempty"`
}

// ActionFailed reports a queued action that will not be retried.
type ActionFailed struct {
	ActionID     string `json:"actionId"`
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
	Reason       string `json:"reason"`
}

type ConflictDetected struct {
	ConflictID   string `json:"conflictId"`
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
}

type ConflictResolved struct {
	ConflictID   string `json:"conflictId"`
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
	Strategy     string `json:"strategy"`
}

type ConflictResolveFailed struct {
	ConflictID string `json:"conflictId"`
	Strategy   string `json:"strategy"`
	Error      string `json:"error"`
}

// GetCacheSize asks for a CacheSize reply.
type GetCacheSize struct{}

// CacheSize reports entries per named response cache and durable store usage.
type CacheSize struct {
	Caches     map[string]int `json:"caches"`
	StoreBytes int64          `json:"storeBytes"`
	StoreItems int            `json:"storeItems"`
}

// NotificationClick is sent by a view when the user acts on a notification.
type NotificationClick struct {
	PNR    string `json:"pnr"`
	Action string `json:"action,omitempty"`
}

func (SyncComplete) Kind() Kind          { return KindSyncComplete }
func (ActionFailed) Kind() Kind          { return KindActionFailed }
func (ConflictDetected) Kind() Kind      { return KindConflictDetected }
func (ConflictResolved) Kind() Kind      { return KindConflictResolved }
func (ConflictResolveFailed) Kind() Kind { return KindConflictResolveFailed }
func (GetCacheSize) Kind() Kind          { return KindGetCacheSize }
func (CacheSize) Kind() Kind             { return KindCacheSize }
func (NotificationClick) Kind() Kind     { return KindNotificationClick }

// registry is the dispatch table used by Decode.
var registry = map[Kind]func() Message{
	KindSyncComplete:          func() Message { return &SyncComplete{} },
	KindActionFailed:          func() Message { return &ActionFailed{} },
	KindConflictDetected:      func() Message { return &ConflictDetected{} },
	KindConflictResolved:      func() Message { return &ConflictResolved{} },
	KindConflictResolveFailed: func() Message { return &ConflictResolveFailed{} },
	KindGetCacheSize:          func() Message { return &GetCacheSize{} },
	KindCacheSize:             func() Message { return &CacheSize{} },
	KindNotificationClick:     func() Message { return &NotificationClick{} },
}

var ErrUnknownKind = errors.New("unknown message type")

// Encode renders msg as a flat JSON object with a "type" field.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	kind, _ := json.Marshal(msg.Kind())
	fields["type"] = kind

	return json.Marshal(fields)
}

// Decode parses a wire message into its concrete value type.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	newMsg, ok := registry[head.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, head.Type)
	}

	ptr := newMsg()
	if err := json.Unmarshal(data, ptr); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	return deref(ptr), nil
}

// deref turns the pointer produced by the registry back into a value so
// decoded messages compare equal to posted ones.
func deref(m Message) Message {
	switch v := m.(type) {
	case *SyncComplete:
		return *v
	case *ActionFailed:
		return *v
	case *ConflictDetected:
		return *v
	case *ConflictResolved:
		return *v
	case *ConflictResolveFailed:
		return *v
	case *GetCacheSize:
		return *v
	case *CacheSize:
		return *v
	case *NotificationClick:
		return *v
	default:
		return m
	}
}
