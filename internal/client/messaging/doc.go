// Package messaging carries typed, fire-and-forget notifications between the
// sync machinery and whatever views are attached to it.
//
// Messages are a closed tagged union: every concrete type implements Message
// and is registered in a dispatch table keyed by its Kind. On the wire a
// message is a flat JSON object whose "type" field holds the kind:
//
//	{"type":"OFFLINE_SYNC_COMPLETE","actionId":"...","resourceId":"2455423890"}
//
// The Bus delivers posted messages on its own goroutine from an unbounded
// FIFO, so posting never blocks and handlers never run on the poster's
// goroutine. Messages are values; nothing is shared between poster and
// handler.
//
// Hub bridges a Bus to browser or terminal views over WebSocket.
package messaging
