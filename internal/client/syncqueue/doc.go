// Package syncqueue persists mutations captured while offline and replays
// them once the server is reachable again.
//
// # Overview
//
// Queue keeps two lists in the durable store: pending actions under
// "offline_queue" and actions that will never be retried under
// "offline_failed". Syncer replays the pending list strictly in enqueue
// order, one request at a time and one replay at a time.
//
// Per action the outcome is:
//
//   - success: removed from the queue first, then OFFLINE_SYNC_COMPLETE is
//     posted, so a crash in between cannot replay it twice;
//   - transient failure: retry count bumped and the next attempt scheduled
//     with exponential backoff; later actions on the same resource wait so
//     ordering per resource is kept;
//   - version conflict: handed to the conflict resolver and dropped from
//     the queue;
//   - permanent rejection, exhausted attempts or an action older than the
//     retention window: moved to the failed list and OFFLINE_ACTION_FAILED
//     is posted.
//
// A failure never blocks actions on other resources.
package syncqueue
