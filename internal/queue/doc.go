// Package queue implements the sequential event delivery queue.
//
// Add is fire-and-forget: it appends a Job to the FIFO pending list and starts
// a drain goroutine if none is running. The drain goroutine attempts exactly
// one job at a time:
//
//   - while the Limiter reports a cooldown it polls every PollInterval (1s)
//     without starting an attempt;
//   - otherwise it sends the oldest job and classifies the result into an
//     Outcome. Delivered and Failed jobs leave the queue; Throttled jobs (the
//     error carries HTTP 429) move to the tail and the Limiter is told to block
//     for Cooldown (5s).
//
// The goroutine exits as soon as the queue is empty, so an idle Queue holds no
// goroutines. Observers receive every state transition of every job.
package queue
