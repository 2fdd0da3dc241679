// Package ratelimit holds the server-imposed delivery cooldown.
//
// A Limiter stores one "blocked until" instant. SetLimit overwrites it
// unconditionally (a later, shorter limit wins over an earlier, longer one);
// IsLimited reports whether the current time is strictly before it. No history
// is kept because the ingestion endpoint issues one global window.
package ratelimit
