package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Strategy selects how a version conflict is resolved.
type Strategy string

const (
	StrategyClientWins Strategy = "client-wins"
	StrategyServerWins Strategy = "server-wins"
	StrategyMerge      Strategy = "merge"
)

// ParseStrategy validates s. The empty string is rejected.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyClientWins, StrategyServerWins, StrategyMerge:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown conflict strategy %q", s)
	}
}

type ConflictStatus string

const (
	ConflictPending  ConflictStatus = "pending"
	ConflictResolved ConflictStatus = "resolved"
)

// Conflict is a replayed action the server rejected because the resource had
// moved past the version the client based its change on.
type Conflict struct {
	ID            string          `json:"id"`
	ActionID      string          `json:"actionId"`
	Operation     Operation       `json:"operation"`
	ResourceType  string          `json:"resourceType"`
	ResourceID    string          `json:"resourceId"`
	ClientData    json.RawMessage `json:"clientData,omitempty"`
	ServerData    json.RawMessage `json:"serverData,omitempty"`
	ServerVersion int             `json:"serverVersion"`
	Request       CapturedRequest `json:"request"`
	Strategy      Strategy        `json:"strategy,omitempty"`
	Status        ConflictStatus  `json:"status"`
	LastError     string          `json:"lastError,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}
