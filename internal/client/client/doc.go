// Package client talks to the PNR Watch sync backend.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface): replaying
//     captured mutations, fetching versioned records, and a liveness probe.
//  2. An HTTP implementation (HTTPClient) that injects the bearer token and
//     maps responses onto the sync error taxonomy.
//  3. Liveness probes over plain HTTP (HTTPPinger) and the gRPC health
//     protocol (HealthPinger).
//
// # Error Handling
//
// Failures are classified so the sync layer can react:
//
//   - transport errors and 5xx responses wrap common.ErrUnavailable (retry);
//   - 409 version_conflict responses return *ConflictError, which matches
//     common.ErrVersionConflict with errors.Is;
//   - other 4xx responses wrap common.ErrRejected (never retried); 401/403
//     additionally wrap common.ErrUnauthorized.
//
// All operations accept context.Context and honour cancellation.
package client
