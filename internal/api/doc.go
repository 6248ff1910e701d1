// Package api serves the HTTP surface of the daemon. It hands out produced
// clips, streams their media files, reveals answers, and exposes run
// verification and status endpoints.
//
// # Endpoints
//
// GET /api/resource/gen: assign the next queued clip of the requested kind.
//
// GET /api/resource/media/{basename}: stream a clip file with immutable
// caching headers and mark it served.
//
// GET /api/resource/check/{id}: reveal a clip's answer, grade an optional
// guess, and retire the answer record.
//
// POST /api/resource/cleanup/{id}: delete a clip and its stored state.
//
// POST /api/run/new and GET /api/run/{id}/verify: create and export signed
// run histories.
//
// GET /api/show and GET /api/status: client-facing show metadata and a queue
// snapshot for the status command.
//
// # Design Notes
//
// Handlers respond as soon as the primary effect is durable. Secondary work
// such as cleanup of a superseded clip or run bookkeeping runs on tracked
// background goroutines that are drained during shutdown, so a slow disk
// never holds up an assignment response.
package api
