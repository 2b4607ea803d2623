package replication

import (
	"context"
	"log"
	"time"

	"trandb/internal/metrics"
)

const defaultRetryInterval = 100 * time.Millisecond

// Sender is the single background worker that drains the queue toward the
// replica. Delivery failures are retried forever at a fixed interval and are
// invisible to the clients whose writes produced the entries.
type Sender struct {
	queue      *Queue
	replicator Replicator
	retry      time.Duration
	metrics    *metrics.Metrics
}

func NewSender(q *Queue, r Replicator, m *metrics.Metrics) *Sender {
	return &Sender{
		queue:      q,
		replicator: r,
		retry:      defaultRetryInterval,
		metrics:    m,
	}
}

// Run loops until ctx is cancelled. It owns snapshot/trim exclusively;
// producers only append and wake.
func (s *Sender) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.queue.Wake():
		}
		s.drain(ctx)
	}
}

// drain transmits until the queue is empty or ctx is cancelled.
func (s *Sender) drain(ctx context.Context) {
	for {
		batch := s.queue.Snapshot()
		if len(batch) == 0 {
			return
		}

		s.metrics.BatchesSent.Add(1)
		applied, err := s.replicator.Replicate(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.metrics.SendFailures.Add(1)
			log.Printf("replicate: batch of %d failed, retrying in %s: %v", len(batch), s.retry, err)
			if !s.pause(ctx) {
				return
			}
			continue
		}

		if n := s.queue.TrimThrough(applied); n > 0 {
			s.metrics.EntriesAcked.Add(int64(n))
		}

		// A partial ack leaves a suffix queued; resend it next round rather
		// than spinning on an unresponsive replica.
		if s.queue.Len() > 0 {
			if !s.pause(ctx) {
				return
			}
		}
	}
}

func (s *Sender) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.retry):
		return true
	}
}
