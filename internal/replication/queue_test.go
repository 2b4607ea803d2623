package replication

import (
	"testing"

	"trandb/internal/model"
)

func put(seq uint64) model.Mutation {
	return model.Mutation{Seq: seq, Op: model.OpPut, Key: "k", Value: []byte("v")}
}

func TestQueueAppendSnapshotTrim(t *testing.T) {
	q := NewQueue()

	q.Append(put(7))
	q.Append(put(8))
	q.Append(put(9))

	snap := q.Snapshot()
	if len(snap) != 3 || snap[0].Seq != 7 || snap[2].Seq != 9 {
		t.Fatalf("bad snapshot: %+v", snap)
	}

	// Partial ack removes only the acknowledged prefix.
	if n := q.TrimThrough(8); n != 2 {
		t.Fatalf("trimmed %d, want 2", n)
	}
	snap = q.Snapshot()
	if len(snap) != 1 || snap[0].Seq != 9 {
		t.Fatalf("expected only seq 9 retained, got %+v", snap)
	}

	if n := q.TrimThrough(6); n != 0 {
		t.Fatalf("stale ack trimmed %d entries", n)
	}
	if n := q.TrimThrough(9); n != 1 {
		t.Fatalf("trimmed %d, want 1", n)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty: %d", q.Len())
	}
}

func TestQueueSnapshotIsACopy(t *testing.T) {
	q := NewQueue()
	q.Append(put(1))

	snap := q.Snapshot()
	snap[0].Seq = 99

	if got := q.Snapshot()[0].Seq; got != 1 {
		t.Fatalf("snapshot aliased queue storage: seq=%d", got)
	}
}

func TestQueueWakeNeverBlocksProducers(t *testing.T) {
	q := NewQueue()

	// Nobody is draining the wake channel; appends must still return.
	for i := 0; i < 100; i++ {
		q.Append(put(uint64(i + 1)))
	}

	select {
	case <-q.Wake():
	default:
		t.Fatal("expected a pending wake signal")
	}
	if q.Len() != 100 {
		t.Fatalf("queue length %d", q.Len())
	}
}
