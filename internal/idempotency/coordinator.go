// Package idempotency makes PUT/DELETE exactly-once from the caller's view.
// Each client token maps to either an in-flight execution (duplicates wait
// and share its result) or a completed, cached outcome.
package idempotency

import (
	"errors"
	"sync"
	"time"
)

// ErrKeyReuse reports a token replayed against a different method or key.
var ErrKeyReuse = errors.New("Idempotency-Key was already used for a different method or key path")

const defaultTTL = time.Hour

// Outcome is the terminal result of one logical operation, replayed verbatim
// to every duplicate of its token.
type Outcome struct {
	StatusCode int
	Version    uint64
	HasVersion bool // false for the no-op DELETE path
}

type record struct {
	method    string
	keyPath   string
	createdAt time.Time

	// done is closed exactly once, after outcome is set. Waiters read
	// outcome only after done, so no lock is needed on that path.
	done      chan struct{}
	completed bool
	outcome   Outcome
}

// Coordinator owns the token table. Its lock is independent of the store's
// guard; the table is only ever touched through Begin/Complete/Fail.
type Coordinator struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
	ttl     time.Duration
}

// New creates a Coordinator with a one-hour record TTL.
func New() *Coordinator {
	return &Coordinator{
		records: make(map[string]*record),
		now:     time.Now,
		ttl:     defaultTTL,
	}
}

// Ticket is the obligation handed to the single caller that is executing a
// token for real. Exactly one of Complete or Fail must be called.
type Ticket struct {
	c     *Coordinator
	token string
	rec   *record
}

// Begin runs the idempotency protocol for (token, method, keyPath).
// Exactly one of the three returns is non-zero:
//   - a Ticket: no record existed; the caller must execute the operation and
//     settle the ticket;
//   - an Outcome: the token already completed (or completed while we waited
//     on its in-flight execution); return it without touching the store;
//   - ErrKeyReuse: the token belongs to a different method or key path.
//
// Waiting on an in-flight execution has no deadline. If the executor never
// settles its ticket, waiters block indefinitely; that gap is inherited from
// the design, not papered over here.
func (c *Coordinator) Begin(token, method, keyPath string) (*Ticket, *Outcome, error) {
	c.mu.Lock()

	rec, ok := c.records[token]
	if ok && rec.completed && c.now().Sub(rec.createdAt) >= c.ttl {
		// Lazy expiry: an expired token is a brand-new token.
		delete(c.records, token)
		ok = false
	}

	if !ok {
		rec = &record{
			method:    method,
			keyPath:   keyPath,
			createdAt: c.now(),
			done:      make(chan struct{}),
		}
		c.records[token] = rec
		c.mu.Unlock()
		return &Ticket{c: c, token: token, rec: rec}, nil, nil
	}

	if rec.method != method || rec.keyPath != keyPath {
		c.mu.Unlock()
		return nil, nil, ErrKeyReuse
	}

	if rec.completed {
		out := rec.outcome
		c.mu.Unlock()
		return nil, &out, nil
	}

	// Coalesce: some other request holds the ticket. Wait for it.
	c.mu.Unlock()
	<-rec.done
	out := rec.outcome
	return nil, &out, nil
}

// Complete publishes the outcome, caches it for later replays, and releases
// every waiter coalesced on the token.
func (t *Ticket) Complete(out Outcome) {
	t.c.mu.Lock()
	t.rec.outcome = out
	t.rec.completed = true
	close(t.rec.done)
	t.c.mu.Unlock()
}

// Fail publishes a transient-failure outcome to current waiters but forgets
// the token, so a later retry executes as a fresh operation. Failures are
// never cached.
func (t *Ticket) Fail(out Outcome) {
	t.c.mu.Lock()
	t.rec.outcome = out
	t.rec.completed = true
	delete(t.c.records, t.token)
	close(t.rec.done)
	t.c.mu.Unlock()
}

// PurgeExpired drops completed records older than the TTL and returns how
// many were removed. In-flight records are never purged.
func (c *Coordinator) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for token, rec := range c.records {
		if rec.completed && now.Sub(rec.createdAt) >= c.ttl {
			delete(c.records, token)
			n++
		}
	}
	return n
}

// Len reports the current record count. Test/introspection use.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}
