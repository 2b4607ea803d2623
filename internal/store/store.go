// Package store owns the key->entry map and the global version counter.
// Both live under one shared/exclusive guard: version order is exactly the
// order in which mutators acquire the guard, which is what makes the version
// double as the replication sequence number.
package store

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"trandb/internal/model"
)

// ErrLockTimeout is returned when the guard could not be acquired within the
// configured wait. Surfaced to clients as 503; never retried internally.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// ErrNotFound is returned by Get for absent and tombstoned keys alike.
var ErrNotFound = errors.New("key not found")

// maxWeight is the semaphore capacity. A reader holds weight 1, a writer
// holds all of it, giving RWMutex semantics with a timed acquire.
const maxWeight = 1 << 30

const defaultLockWait = 1 * time.Second

// Config for a Store.
type Config struct {
	Clock    model.Clock
	LockWait time.Duration // guard acquisition bound; defaults to 1s

	// OnMutation, when non-nil, is invoked for every applied mutation while
	// the exclusive guard is still held, so downstream consumers observe
	// mutations in version order. Must not block. Nil disables the hook
	// entirely (single-node mode).
	OnMutation func(model.Mutation)
}

// Store is the versioned in-memory store. All durability is absent on
// purpose: a restart loses everything.
type Store struct {
	sem        *semaphore.Weighted
	lockWait   time.Duration
	clock      model.Clock
	onMutation func(model.Mutation)

	// Guarded state. entries and version share the guard; the counter must
	// never be advanced outside it.
	entries map[string]model.Entry
	version uint64
}

// New creates an empty store.
func New(cfg Config) *Store {
	if cfg.Clock == nil {
		cfg.Clock = model.SystemClock{}
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	return &Store{
		sem:        semaphore.NewWeighted(maxWeight),
		lockWait:   cfg.LockWait,
		clock:      cfg.Clock,
		onMutation: cfg.OnMutation,
		entries:    make(map[string]model.Entry),
	}
}

func (s *Store) acquire(ctx context.Context, weight int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	if err := s.sem.Acquire(ctx, weight); err != nil {
		return ErrLockTimeout
	}
	return nil
}

// Get returns the live entry for key. Tombstoned keys are indistinguishable
// from absent ones. Readers share the guard and never block each other.
func (s *Store) Get(ctx context.Context, key string) (model.Entry, error) {
	if err := s.acquire(ctx, 1); err != nil {
		return model.Entry{}, err
	}
	defer s.sem.Release(1)

	e, ok := s.entries[key]
	if !ok || e.Tombstone() {
		return model.Entry{}, ErrNotFound
	}
	cp := make([]byte, len(e.Value))
	copy(cp, e.Value)
	e.Value = cp
	return e, nil
}

// Put stores value under key, assigning the next version. The counter always
// advances, including on overwrite. expiresAt of 0 means no expiry.
func (s *Store) Put(ctx context.Context, key string, value []byte, expiresAt uint64) (uint64, error) {
	if err := s.acquire(ctx, maxWeight); err != nil {
		return 0, err
	}
	defer s.sem.Release(maxWeight)

	s.version++
	version := s.version
	// make, not append: an empty value must stay non-nil or it would read
	// back as a tombstone.
	stored := make([]byte, len(value))
	copy(stored, value)
	s.entries[key] = model.Entry{Value: stored, Version: version, ExpiresAt: expiresAt}

	if s.onMutation != nil {
		s.onMutation(model.Mutation{
			Seq:       version,
			Op:        model.OpPut,
			Key:       key,
			Value:     stored,
			ExpiresAt: expiresAt,
		})
	}
	return version, nil
}

// Delete tombstones a live key, assigning the next version and a fixed-TTL
// expiry. Deleting an absent or already-tombstoned key is a no-op: no
// version is consumed and the hook does not fire.
func (s *Store) Delete(ctx context.Context, key string) (version uint64, tombstoned bool, err error) {
	if err := s.acquire(ctx, maxWeight); err != nil {
		return 0, false, err
	}
	defer s.sem.Release(maxWeight)

	e, ok := s.entries[key]
	if !ok || e.Tombstone() {
		return 0, false, nil
	}

	s.version++
	version = s.version
	expiresAt := s.clock.UnixNow() + uint64(model.TombstoneTTL/time.Second)
	s.entries[key] = model.Entry{Value: nil, Version: version, ExpiresAt: expiresAt}

	if s.onMutation != nil {
		s.onMutation(model.Mutation{
			Seq: version,
			Op:  model.OpDelete,
			Key: key,
		})
	}
	return version, true, nil
}

// ApplyReplicated applies one mutation from the replication stream. Puts are
// upserted exactly as given; the local counter is untouched. Deletes insert
// a fresh fixed-TTL tombstone and advance the counter only if the incoming
// version exceeds it, keeping the (best-effort) counter monotonic.
func (s *Store) ApplyReplicated(ctx context.Context, m model.Mutation) error {
	if !m.Op.Valid() {
		return errors.New("invalid operation")
	}
	if err := s.acquire(ctx, maxWeight); err != nil {
		return err
	}
	defer s.sem.Release(maxWeight)

	switch m.Op {
	case model.OpPut:
		stored := make([]byte, len(m.Value))
		copy(stored, m.Value)
		s.entries[m.Key] = model.Entry{
			Value:     stored,
			Version:   m.Seq,
			ExpiresAt: m.ExpiresAt,
		}
	case model.OpDelete:
		expiresAt := s.clock.UnixNow() + uint64(model.TombstoneTTL/time.Second)
		s.entries[m.Key] = model.Entry{Value: nil, Version: m.Seq, ExpiresAt: expiresAt}
		if m.Seq > s.version {
			s.version = m.Seq
		}
	}
	return nil
}

// Version returns the current counter value.
func (s *Store) Version(ctx context.Context) (uint64, error) {
	if err := s.acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer s.sem.Release(1)
	return s.version, nil
}

// Snapshot copies the raw entry map, tombstones included. Debug/test use.
func (s *Store) Snapshot(ctx context.Context) (map[string]model.Entry, error) {
	if err := s.acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	cp := make(map[string]model.Entry, len(s.entries))
	for k, v := range s.entries {
		cp[k] = v
	}
	return cp, nil
}
