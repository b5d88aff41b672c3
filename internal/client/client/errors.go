package client

import (
	"encoding/json"
	"fmt"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
)

// ConflictError is returned when the server rejected a write because the
// resource has moved past the version the request was based on.
type ConflictError struct {
	ServerVersion int
	ServerData    json.RawMessage
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: server is at version %d", e.ServerVersion)
}

func (e *ConflictError) Is(target error) bool {
	return target == common.ErrVersionConflict
}

// conflictBody is the JSON body of a 409 response.
type conflictBody struct {
	Error          string          `json:"error"`
	CurrentVersion int             `json:"currentVersion"`
	Current        json.RawMessage `json:"current"`
}

// VersionConflictCode is the error code of a version conflict response.
const VersionConflictCode = "version_conflict"
