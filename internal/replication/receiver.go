package replication

import (
	"context"
	"fmt"
	"sync"

	"trandb/internal/metrics"
	"trandb/internal/store"
)

// Receiver applies incoming batches on the replica, strictly in the order
// given. Batches are serialized against each other; entries within a batch
// are applied one at a time and never rolled back, so a malformed entry
// leaves its predecessors applied.
type Receiver struct {
	mu      sync.Mutex
	store   *store.Store
	metrics *metrics.Metrics
}

func NewReceiver(st *store.Store, m *metrics.Metrics) *Receiver {
	return &Receiver{store: st, metrics: m}
}

// Apply processes one batch and returns the highest sequence fully applied
// (0 for an empty batch). On failure the response still reports the applied
// prefix; the error tells the sender to retry the whole batch.
func (r *Receiver) Apply(ctx context.Context, req BatchRequest) (BatchResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var applied uint64
	for _, entry := range req.Entries {
		m, err := DecodeEntry(entry)
		if err != nil {
			r.metrics.BatchesRejected.Add(1)
			return BatchResponse{AppliedThrough: applied}, err
		}
		if err := r.store.ApplyReplicated(ctx, m); err != nil {
			return BatchResponse{AppliedThrough: applied}, fmt.Errorf("apply seq %d: %w", entry.Seq, err)
		}
		applied = entry.Seq
		r.metrics.EntriesReceived.Add(1)
	}
	return BatchResponse{AppliedThrough: applied}, nil
}
