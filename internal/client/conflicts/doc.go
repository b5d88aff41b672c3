// Package conflicts tracks version conflicts raised while replaying offline
// mutations and applies the strategy chosen to settle each one.
//
// A conflict is Detected when the server rejects a replay with a version
// mismatch; it is then Pending until a strategy is applied. Resolution
// writes exactly one authoritative record through the resource's handler
// and deletes the conflict. A failed resolution leaves the conflict pending
// with its last error and posts CONFLICT_RESOLVE_FAILED.
package conflicts
