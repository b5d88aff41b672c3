package client

import (
	"context"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
)

// Result is a successful server response to a replayed request.
type Result struct {
	Status int
	// Version is the resource version reported in the ETag, 0 if absent.
	Version int
	Body    []byte

	// Truncated is set when the body exceeded the read limit and was
	// dropped. Status and Version are still accurate.
	Truncated bool
}

type Client interface {
	// Send issues a captured request verbatim (plus authentication).
	Send(ctx context.Context, req models.CapturedRequest) (Result, error)
	FetchPNR(ctx context.Context, pnr string) (models.VersionedPNR, error)
	FetchPreferences(ctx context.Context) (models.VersionedPreferences, error)
	Ping(ctx context.Context) error
	Close() error
}

// Pinger probes server liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
