// Package metrics holds atomic counters for observability.
package metrics

import "sync/atomic"

// Metrics counts the interesting events on both node roles. All fields are
// safe for concurrent use.
type Metrics struct {
	MutationsApplied   atomic.Int64 // versions consumed by PUT/tombstoning DELETE
	NoopDeletes        atomic.Int64
	ReplaysServed      atomic.Int64 // cached or coalesced idempotent responses
	IdempotencyErrors  atomic.Int64 // token reused for a different method/key
	LockTimeouts       atomic.Int64
	BatchesSent        atomic.Int64
	SendFailures       atomic.Int64 // transport or apply failures, all retried
	EntriesAcked       atomic.Int64
	EntriesReceived    atomic.Int64 // applied on the replica
	BatchesRejected    atomic.Int64 // malformed entry in an incoming batch
	RecordsPurged      atomic.Int64 // expired idempotency records
}

// Snapshot returns all counters as a string-keyed map, served at /metrics.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"mutations_applied_total":  m.MutationsApplied.Load(),
		"noop_deletes_total":       m.NoopDeletes.Load(),
		"replays_served_total":     m.ReplaysServed.Load(),
		"idempotency_errors_total": m.IdempotencyErrors.Load(),
		"lock_timeouts_total":      m.LockTimeouts.Load(),
		"batches_sent_total":       m.BatchesSent.Load(),
		"send_failures_total":      m.SendFailures.Load(),
		"entries_acked_total":      m.EntriesAcked.Load(),
		"entries_received_total":   m.EntriesReceived.Load(),
		"batches_rejected_total":   m.BatchesRejected.Load(),
		"records_purged_total":     m.RecordsPurged.Load(),
	}
}
