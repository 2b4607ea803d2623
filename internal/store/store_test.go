package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trandb/internal/model"
)

type fakeClock struct {
	now uint64
}

func (f fakeClock) UnixNow() uint64 { return f.now }

func TestPutAssignsStrictlyIncreasingVersions(t *testing.T) {
	s := New(Config{Clock: fakeClock{now: 1000}})
	ctx := context.Background()

	v1, err := s.Put(ctx, "a", []byte("one"), 0)
	if err != nil {
		t.Fatalf("put a: %v", err)
	}
	v2, err := s.Put(ctx, "b", []byte("two"), 0)
	if err != nil {
		t.Fatalf("put b: %v", err)
	}
	v3, err := s.Put(ctx, "a", []byte("three"), 0)
	if err != nil {
		t.Fatalf("overwrite a: %v", err)
	}

	if v1 != 1 || v2 != 2 || v3 != 3 {
		t.Fatalf("expected versions 1,2,3 got %d,%d,%d", v1, v2, v3)
	}

	e, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if string(e.Value) != "three" || e.Version != 3 {
		t.Fatalf("expected three@3, got %q@%d", e.Value, e.Version)
	}
}

func TestGetAbsentKey(t *testing.T) {
	s := New(Config{Clock: fakeClock{}})
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTombstonesLiveKey(t *testing.T) {
	clock := fakeClock{now: 5000}
	s := New(Config{Clock: clock})
	ctx := context.Background()

	if _, err := s.Put(ctx, "a", []byte("v"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	version, tombstoned, err := s.Delete(ctx, "a")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !tombstoned || version != 2 {
		t.Fatalf("expected tombstoned at version 2, got %v/%d", tombstoned, version)
	}

	// Tombstone reads as absent.
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// The tombstone carries the fixed TTL.
	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	e := snap["a"]
	if !e.Tombstone() {
		t.Fatal("expected a tombstone entry")
	}
	if want := clock.now + 3600; e.ExpiresAt != want {
		t.Fatalf("tombstone expiry: got %d want %d", e.ExpiresAt, want)
	}
}

func TestNoopDeleteIsFree(t *testing.T) {
	var fired int
	s := New(Config{
		Clock:      fakeClock{},
		OnMutation: func(model.Mutation) { fired++ },
	})
	ctx := context.Background()

	// Absent key.
	version, tombstoned, err := s.Delete(ctx, "ghost")
	if err != nil || tombstoned || version != 0 {
		t.Fatalf("absent delete: got %d/%v/%v", version, tombstoned, err)
	}

	// Already-tombstoned key.
	if _, err := s.Put(ctx, "a", []byte("v"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, _, err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	fired = 0
	version, tombstoned, err = s.Delete(ctx, "a")
	if err != nil || tombstoned || version != 0 {
		t.Fatalf("repeat delete: got %d/%v/%v", version, tombstoned, err)
	}
	if fired != 0 {
		t.Fatalf("no-op delete fired the mutation hook %d times", fired)
	}

	// Counter unchanged: next mutation gets 3, not 4.
	v, err := s.Put(ctx, "b", []byte("w"), 0)
	if err != nil {
		t.Fatalf("put b: %v", err)
	}
	if v != 3 {
		t.Fatalf("expected version 3 after put,delete,noop, got %d", v)
	}
}

func TestVersionsNeverReusedAcrossRecreate(t *testing.T) {
	s := New(Config{Clock: fakeClock{}})
	ctx := context.Background()

	seen := map[uint64]bool{}
	v, _ := s.Put(ctx, "a", []byte("1"), 0)
	seen[v] = true
	v, _, _ = s.Delete(ctx, "a")
	if seen[v] {
		t.Fatalf("version %d reused", v)
	}
	seen[v] = true
	v, _ = s.Put(ctx, "a", []byte("2"), 0)
	if seen[v] {
		t.Fatalf("version %d reused after recreate", v)
	}
}

func TestMutationHookObservesVersionOrder(t *testing.T) {
	var mu sync.Mutex
	var seqs []uint64
	s := New(Config{
		Clock: fakeClock{},
		OnMutation: func(m model.Mutation) {
			mu.Lock()
			seqs = append(seqs, m.Seq)
			mu.Unlock()
		},
	})

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%8))
			if _, err := s.Put(context.Background(), key, []byte("v"), 0); err != nil {
				t.Errorf("put: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if len(seqs) != writers {
		t.Fatalf("hook fired %d times, want %d", len(seqs), writers)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("hook observed out-of-order seqs: %v", seqs)
		}
	}
}

func TestLockAcquisitionTimesOut(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	s := New(Config{
		Clock:    fakeClock{},
		LockWait: 50 * time.Millisecond,
		OnMutation: func(model.Mutation) {
			close(entered)
			<-block
		},
	})

	done := make(chan error, 1)
	go func() {
		_, err := s.Put(context.Background(), "a", []byte("v"), 0)
		done <- err
	}()
	<-entered

	// The writer is parked inside the critical section; a read must give up
	// after the bounded wait.
	if _, err := s.Get(context.Background(), "a"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("blocked put: %v", err)
	}
}

func TestApplyReplicatedPut(t *testing.T) {
	s := New(Config{Clock: fakeClock{}})
	ctx := context.Background()

	err := s.ApplyReplicated(ctx, model.Mutation{Seq: 7, Op: model.OpPut, Key: "a", Value: []byte("v"), ExpiresAt: 99})
	if err != nil {
		t.Fatalf("apply put: %v", err)
	}
	e, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Version != 7 || string(e.Value) != "v" || e.ExpiresAt != 99 {
		t.Fatalf("entry not upserted as given: %+v", e)
	}

	// Put does not touch the replica's counter.
	v, err := s.Version(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 0 {
		t.Fatalf("replicated put advanced the counter to %d", v)
	}
}

func TestApplyReplicatedDeleteAdvancesCounterUpwardOnly(t *testing.T) {
	clock := fakeClock{now: 100}
	s := New(Config{Clock: clock})
	ctx := context.Background()

	if err := s.ApplyReplicated(ctx, model.Mutation{Seq: 9, Op: model.OpDelete, Key: "a"}); err != nil {
		t.Fatalf("apply delete: %v", err)
	}
	if v, _ := s.Version(ctx); v != 9 {
		t.Fatalf("counter not advanced: %d", v)
	}

	// An older-looking delete is still applied but never regresses the counter.
	if err := s.ApplyReplicated(ctx, model.Mutation{Seq: 4, Op: model.OpDelete, Key: "b"}); err != nil {
		t.Fatalf("apply older delete: %v", err)
	}
	if v, _ := s.Version(ctx); v != 9 {
		t.Fatalf("counter regressed: %d", v)
	}

	snap, _ := s.Snapshot(ctx)
	b := snap["b"]
	if !b.Tombstone() || b.Version != 4 || b.ExpiresAt != clock.now+3600 {
		t.Fatalf("delete not applied as tombstone: %+v", b)
	}
}

func TestApplyReplicatedRejectsUnknownOp(t *testing.T) {
	s := New(Config{Clock: fakeClock{}})
	if err := s.ApplyReplicated(context.Background(), model.Mutation{Seq: 1, Op: model.OpType(9), Key: "a"}); err == nil {
		t.Fatal("expected an error for an unknown op")
	}
}

func TestPutEmptyValueIsNotATombstone(t *testing.T) {
	s := New(Config{Clock: fakeClock{}})
	ctx := context.Background()
	if _, err := s.Put(ctx, "a", []byte{}, 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	e, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("empty value read back as absent: %v", err)
	}
	if len(e.Value) != 0 {
		t.Fatalf("unexpected value %q", e.Value)
	}
}
