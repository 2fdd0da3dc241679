// Package event builds the JSON event payload posted to the store endpoint.
//
// Builder.Build turns a Go error into an Event with a fresh UUIDv4 event_id
// (32 hex characters, no dashes), a unix timestamp, os and runtime contexts,
// and a single exception value whose stack trace is captured at the caller.
// Options are applied last, so they override any computed field.
package event
