package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
)

// SendFunc performs one delivery attempt. A nil error means the endpoint
// accepted the payload.
type SendFunc func(ctx context.Context) error

// Job is one unit of delivery work. Jobs are compared by pointer identity only.
type Job struct {
	ID   string
	Send SendFunc

	attempts atomic.Int32
}

// NewJob returns a Job that delivers through send.
func NewJob(id string, send SendFunc) *Job {
	return &Job{ID: id, Send: send}
}

// Attempts returns how many times the job has been sent so far.
func (j *Job) Attempts() int {
	return int(j.attempts.Load())
}

// Outcome is the classification of one delivery attempt.
type Outcome uint8

const (
	// Delivered means the endpoint accepted the payload.
	Delivered Outcome = iota + 1
	// Throttled means the endpoint refused with 429 Too Many Requests.
	Throttled
	// Failed covers every other error. Failed jobs are never retried.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Throttled:
		return "throttled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// Classify maps the result of a SendFunc to an Outcome. Only an error whose
// chain contains a StatusCode() exactly equal to 429 is Throttled.
func Classify(err error) Outcome {
	if err == nil {
		return Delivered
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() == http.StatusTooManyRequests {
		return Throttled
	}
	return Failed
}

// State is the position of a job in its lifecycle:
// pending -> in_flight -> {delivered | throttled -> pending | failed}.
type State uint8

const (
	StatePending State = iota + 1
	StateInFlight
	StateDelivered
	StateThrottled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in_flight"
	case StateDelivered:
		return "delivered"
	case StateThrottled:
		return "throttled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for c := StatePending; c <= StateFailed; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("queue: unknown state %q", b)
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateFailed
}

func stateFor(o Outcome) State {
	switch o {
	case Delivered:
		return StateDelivered
	case Throttled:
		return StateThrottled
	default:
		return StateFailed
	}
}

// Observer is notified of job state transitions. err is the send error for
// StateThrottled and StateFailed, nil otherwise. Observe is called from the
// goroutine that caused the transition and must not block.
type Observer interface {
	Observe(job *Job, state State, err error)
}

// Observers fans one notification out to several observers in order.
type Observers []Observer

// Observe implements Observer.
func (obs Observers) Observe(job *Job, state State, err error) {
	for _, o := range obs {
		if o != nil {
			o.Observe(job, state, err)
		}
	}
}
