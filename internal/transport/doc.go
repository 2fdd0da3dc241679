// Package transport posts serialized events to the ingestion endpoint.
//
// Send performs exactly one HTTP POST per call. A 2xx response is success;
// any other status is returned as *StatusError so the delivery queue can tell
// a 429 (retry after cooldown) from permanent failures. Network errors are
// returned wrapped and are never retried.
package transport
