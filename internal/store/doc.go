// Package store tracks the delivery state of recently captured events.
package store
