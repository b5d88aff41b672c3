// Package cli implements the pnrwatch command line on top of the client
// app: tracking PNRs, editing preferences, inspecting the offline queue and
// resolving conflicts.
//
// Every command opens the local store, runs once and closes it again. The
// only long running command is "views", which keeps the background sync
// loop alive and serves the view bridge over WebSocket.
package cli
