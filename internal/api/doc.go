// Package api implements the agent's HTTP REST API.
//
// New(reporter, store) returns an http.Handler that serves:
//
//	POST /api/v1/capture       — report an error on behalf of a caller; 202 {event_id}
//	GET  /api/v1/events        — most recent delivery records (?limit=N, default 50)
//	GET  /api/v1/events/{id}   — delivery record for one event; 404 if unknown
//	GET  /api/v1/queue         — depth, processing flag and rate-limit state
//	GET  /api/v1/health        — "ok", or "limited" while delivery is paused
//
// All endpoints respond with Content-Type: application/json and return 405
// for unsupported methods. JSON types are defined in types.go.
package api
