package replication

import (
	"sync"

	"trandb/internal/model"
)

// Queue is the in-memory record of mutations not yet acknowledged by the
// replica. Producers only append and signal; the sender alone snapshots and
// trims. Entries arrive in ascending seq because the store invokes its
// mutation hook while still holding the exclusive guard.
//
// The queue is deliberately not durable: a primary restart discards all
// unacknowledged entries.
type Queue struct {
	mu      sync.Mutex
	entries []model.Mutation
	wake    chan struct{}
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Append adds a mutation at the tail and wakes the sender. Never blocks.
func (q *Queue) Append(m model.Mutation) {
	q.mu.Lock()
	q.entries = append(q.entries, m)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Wake is the sender's wakeup signal.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

// Snapshot returns an immutable copy of everything currently queued.
func (q *Queue) Snapshot() []model.Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	cp := make([]model.Mutation, len(q.entries))
	copy(cp, q.entries)
	return cp
}

// TrimThrough removes the contiguous prefix of entries with seq <= seq and
// returns how many were removed.
func (q *Queue) TrimThrough(seq uint64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for n < len(q.entries) && q.entries[n].Seq <= seq {
		n++
	}
	if n > 0 {
		q.entries = append([]model.Mutation(nil), q.entries[n:]...)
	}
	return n
}

// Len reports the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
