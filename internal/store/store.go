package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/crashpost/crashpost/internal/queue"
)

// Record is the latest known delivery state of one event.
type Record struct {
	EventID   string      `json:"event_id"`
	State     queue.State `json:"state"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"last_error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Store is a thread-safe in-memory record store keyed by event id.
// It implements queue.Observer. Terminal records (delivered, failed) are
// evicted once they are older than the TTL; records still in the queue are
// kept regardless of age.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Record
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Record),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Observe records a job transition.
func (s *Store) Observe(job *queue.Job, state queue.State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	r, ok := s.data[job.ID]
	if !ok {
		r = &Record{EventID: job.ID, CreatedAt: now}
		s.data[job.ID] = r
	}
	r.State = state
	r.Attempts = job.Attempts()
	r.UpdatedAt = now
	if err != nil {
		r.LastError = err.Error()
	} else if state == queue.StateDelivered {
		r.LastError = ""
	}
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Recent returns up to limit records, most recently updated first.
// limit <= 0 returns all records.
func (s *Store) Recent(limit int) []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.data))
	for _, r := range s.data {
		out = append(out, *r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].EventID < out[j].EventID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Counts returns the number of records per state.
func (s *Store) Counts() map[queue.State]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[queue.State]int)
	for _, r := range s.data {
		out[r.State]++
	}
	return out
}

// Count returns the total number of records currently held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes terminal records whose UpdatedAt is older than now minus TTL.
// It returns the number of records removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, r := range s.data {
		if r.State.Terminal() && !r.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted delivery records", "count", n)
			}
		}
	}
}
