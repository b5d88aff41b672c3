// Package pnrs provides the client-side persistence layer for tracked PNR
// status snapshots.
//
// # Overview
//
// Records live in the durable store under "pnr:<pnr>" with a 24h TTL. The
// entry version starts at 1 and is bumped on every local write; when the
// server's version becomes known (a successful replay or a server-wins
// resolution) Apply stores it verbatim so the local version follows the
// server.
//
// Key Types
//
//   - Repository: interface used by the CLI, sync and conflict code
//   - StoreRepository: implementation over storage.Store
//
// Typical Usage
//
//	repo := pnrs.NewStoreRepository(store, clock)
//	_ = repo.StorePNR(ctx, "2455423890", rec)
//	rec, ok := repo.GetPNR(ctx, "2455423890")
//	all := repo.GetAllPNRs(ctx)
package pnrs
