package pnrs

import (
	"context"
	"encoding/json"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
)

type Repository interface {
	StorePNR(ctx context.Context, pnr string, rec models.PNRRecord) bool
	GetPNR(ctx context.Context, pnr string) (models.PNRRecord, bool)
	GetAllPNRs(ctx context.Context) []models.PNRRecord
	RemovePNR(ctx context.Context, pnr string) bool

	// Version returns the stored version of pnr, or 0 when absent.
	Version(ctx context.Context, pnr string) int

	// Apply stores a server-authoritative record with the server's version.
	Apply(ctx context.Context, pnr string, data json.RawMessage, version int) error

	// Delete removes the local record after the server accepted a delete.
	Delete(ctx context.Context, pnr string) error

	// Merge combines a client and a server snapshot of the same booking.
	Merge(client, server json.RawMessage) (json.RawMessage, error)
}
