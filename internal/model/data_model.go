package model

import "time"

// Size limits enforced on the client-facing surface. Oversized requests are
// rejected before any state is touched.
const (
	MaxKeySize   = 1024
	MaxValueSize = 4 * 1024 * 1024
)

// TombstoneTTL is how long a tombstone entry lives before the TTL mechanism
// may expire it.
const TombstoneTTL = 3600 * time.Second

// Entry is the stored state for one key. A nil Value marks a tombstone:
// the key was deleted at Version and reads treat it as absent.
type Entry struct {
	Value     []byte
	Version   uint64
	ExpiresAt uint64 // absolute Unix seconds; 0 = no expiry
}

// Tombstone reports whether the entry records a deletion.
func (e Entry) Tombstone() bool {
	return e.Value == nil
}

// Expired reports whether the entry has a TTL and the clock is at or past it.
func (e Entry) Expired(clock Clock) bool {
	return e.ExpiresAt != 0 && clock.UnixNow() >= e.ExpiresAt
}

// Clock abstracts current time so TTL behavior is testable.
type Clock interface {
	UnixNow() uint64
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) UnixNow() uint64 {
	return uint64(time.Now().Unix())
}
