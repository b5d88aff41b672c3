// Package router is an http.RoundTripper that routes each request through a
// caching strategy chosen by declarative rules, and captures mutations made
// while offline.
//
// # Strategies
//
//   - cache-first: serve a cached copy; otherwise fetch and cache a 200.
//   - network-first: fetch with a timeout; on failure fall back to the cached
//     copy, then to the cached app shell for navigations, then to a 503.
//   - stale-while-revalidate: serve a cached copy at once and refresh the
//     cache in the background; without a cached copy, wait for the network.
//   - network-only: pass the request through.
//
// Rules are tested in order and the first match wins. Requests no rule
// matches are network-only.
//
// # Mutations
//
// Non-GET requests are never served from cache. When the client is offline,
// or the network fails in transport, the request is captured verbatim,
// handed to the offline queue, and answered with a synthetic 202:
//
//	{"queued":true,"id":"<action id>"}
package router
