package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultCooldown is how long delivery pauses after a 429.
	DefaultCooldown = 5 * time.Second

	// DefaultPollInterval is how often a paused queue re-checks the limiter.
	DefaultPollInterval = 1 * time.Second
)

// ErrClosed is reported to observers for jobs abandoned by Close, and returned
// by Flush once Close has abandoned any.
var ErrClosed = errors.New("queue: closed")

// errLimited keeps backoff.Retry polling while the limiter is set.
var errLimited = errors.New("queue: rate limited")

// Limiter is the rate-limit state consulted before every attempt.
type Limiter interface {
	IsLimited() bool
	SetLimit(d time.Duration)
}

// Config tunes a Queue. Zero values select the defaults.
type Config struct {
	Cooldown     time.Duration
	PollInterval time.Duration
	Observer     Observer
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	// Depth counts jobs between submission and their terminal outcome,
	// including the one currently in flight.
	Depth int
	// Processing is true while a delivery attempt is outstanding.
	Processing bool
}

// Queue delivers jobs one at a time in FIFO order.
type Queue struct {
	limiter  Limiter
	cooldown time.Duration
	poll     backoff.BackOff
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	pending    []*Job
	processing bool
	running    bool          // a drain goroutine exists
	idle       chan struct{} // closed when the current drain goroutine exits
	closed     bool
	abandoned  int // jobs dropped by Close before reaching an outcome
}

// New creates a Queue that consults limiter before each attempt.
func New(limiter Limiter, cfg Config) *Queue {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	observer := cfg.Observer
	if observer == nil {
		observer = Observers(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		limiter:  limiter,
		cooldown: cfg.Cooldown,
		poll:     backoff.WithContext(backoff.NewConstantBackOff(cfg.PollInterval), ctx),
		observer: observer,
		ctx:      ctx,
		cancel:   cancel,
		idle:     idle,
	}
}

// Add appends job to the tail of the queue and starts processing if the queue
// was idle. It never blocks on delivery.
func (q *Queue) Add(job *Job) {
	q.observer.Observe(job, StatePending, nil)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		slog.Warn("queue: closed, dropping job", "job", job.ID)
		q.observer.Observe(job, StateFailed, ErrClosed)
		return
	}
	q.pending = append(q.pending, job)
	start := !q.running
	if start {
		q.running = true
		q.idle = make(chan struct{})
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
}

// Stats returns the current depth and processing flag.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Depth: len(q.pending), Processing: q.processing}
}

// Flush blocks until the queue is empty and idle or ctx is done. Jobs waiting
// out a cooldown keep Flush waiting. After Close has abandoned jobs Flush
// returns ErrClosed.
func (q *Queue) Flush(ctx context.Context) error {
	for {
		q.mu.Lock()
		running, idle := q.running, q.idle
		abandoned := q.closed && q.abandoned > 0
		q.mu.Unlock()
		if abandoned {
			return ErrClosed
		}
		if !running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		}
	}
}

// Close stops processing. An attempt in flight sees its context cancelled;
// it and every job still pending are reported failed with ErrClosed. Close
// waits for the drain goroutine.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	idle := q.idle
	q.mu.Unlock()

	q.cancel()
	<-idle
}

// drain is the processing loop. Exactly one drain goroutine exists while the
// queue is non-empty.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if q.ctx.Err() != nil {
			dropped := q.pending
			q.pending = nil
			q.abandoned += len(dropped)
			q.mu.Unlock()

			// Report before signalling idle so Close returns after observers
			// have seen every outcome.
			q.abandon(dropped...)
			q.mu.Lock()
			q.stopLocked()
			q.mu.Unlock()
			return
		}
		if len(q.pending) == 0 {
			q.stopLocked()
			q.mu.Unlock()
			return
		}
		if q.limiter.IsLimited() {
			q.mu.Unlock()
			q.waitOpen()
			continue
		}
		job := q.pending[0]
		q.processing = true
		q.mu.Unlock()

		q.attempt(job)
	}
}

// stopLocked marks the drain goroutine as gone. Caller holds q.mu.
func (q *Queue) stopLocked() {
	q.running = false
	close(q.idle)
}

// waitOpen polls the limiter at the configured interval until it clears or
// the queue is closed.
func (q *Queue) waitOpen() {
	err := backoff.Retry(func() error {
		if q.limiter.IsLimited() {
			return errLimited
		}
		return nil
	}, q.poll)
	if err != nil {
		slog.Debug("queue: wait for rate limit interrupted", "err", err)
	}
}

// attempt sends job once and applies the outcome.
func (q *Queue) attempt(job *Job) {
	n := job.attempts.Add(1)
	q.observer.Observe(job, StateInFlight, nil)

	err := job.Send(q.ctx)
	if err != nil && q.ctx.Err() != nil {
		// Close interrupted the attempt; the outcome is unknown.
		q.mu.Lock()
		q.remove(job)
		q.processing = false
		q.abandoned++
		q.mu.Unlock()
		q.abandon(job)
		return
	}
	outcome := Classify(err)

	q.mu.Lock()
	q.remove(job)
	if outcome == Throttled {
		q.pending = append(q.pending, job)
	}
	q.processing = false
	q.mu.Unlock()

	switch outcome {
	case Delivered:
		slog.Debug("queue: job delivered", "job", job.ID, "attempt", n)
	case Throttled:
		q.limiter.SetLimit(q.cooldown)
		slog.Warn("queue: job throttled, requeued at tail",
			"job", job.ID, "attempt", n, "cooldown", q.cooldown)
	case Failed:
		slog.Error("queue: job failed, discarding",
			"job", job.ID, "attempt", n, "err", err)
	}
	q.observer.Observe(job, stateFor(outcome), err)
}

// abandon reports jobs dropped by Close.
func (q *Queue) abandon(jobs ...*Job) {
	if len(jobs) > 0 {
		slog.Warn("queue: closed with undelivered jobs", "count", len(jobs))
	}
	for _, job := range jobs {
		q.observer.Observe(job, StateFailed, ErrClosed)
	}
}

// remove deletes the first occurrence of job from pending. Caller holds q.mu.
func (q *Queue) remove(job *Job) {
	for i, j := range q.pending {
		if j == job {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}
