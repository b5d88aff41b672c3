// Package api serves the versioned resource API the pnrwatch client syncs
// against.
//
// Every resource carries an integer version that starts at 1 and grows by
// one per accepted write. The version travels in the ETag header, and
// clients make writes conditional with If-Match. A stale If-Match is
// answered with 409 and a body describing the stored state:
//
//	{"error":"version_conflict","currentVersion":4,"current":{...}}
//
// currentVersion is 0 and current is null when the resource no longer
// exists. Routes other than /health require a bearer JWT.
package api
