package replication

import (
	"errors"
	"fmt"

	"trandb/internal/model"
)

// ErrInvalidOperation reports a batch entry whose operation type the
// receiver does not recognize.
var ErrInvalidOperation = errors.New("invalid operation")

// Wire format for POST /replicate, primary -> replica. One ordered batch per
// request; the response carries the highest sequence fully applied.

type BatchRequest struct {
	Entries []BatchEntry `json:"entries"`
}

type BatchEntry struct {
	Seq uint64 `json:"seq"`
	Op  WireOp `json:"op"`
}

// WireOp is the tagged operation. Type is "put" or "delete"; anything else
// must be rejected, not silently skipped.
type WireOp struct {
	Type      string `json:"type"`
	Key       string `json:"key"`
	Value     []byte `json:"value"` // base64 in JSON; puts only
	Version   uint64 `json:"version"`
	ExpiresAt uint64 `json:"expires_at,omitempty"`
}

type BatchResponse struct {
	AppliedThrough uint64 `json:"applied_through"`
}

// EncodeBatch converts queued mutations to the wire shape.
func EncodeBatch(batch []model.Mutation) BatchRequest {
	req := BatchRequest{Entries: make([]BatchEntry, 0, len(batch))}
	for _, m := range batch {
		req.Entries = append(req.Entries, BatchEntry{
			Seq: m.Seq,
			Op: WireOp{
				Type:      m.Op.String(),
				Key:       m.Key,
				Value:     m.Value,
				Version:   m.Seq,
				ExpiresAt: m.ExpiresAt,
			},
		})
	}
	return req
}

// DecodeEntry converts one wire entry back to a mutation. Unknown operation
// types return ErrInvalidOperation.
func DecodeEntry(e BatchEntry) (model.Mutation, error) {
	m := model.Mutation{
		Seq:       e.Seq,
		Key:       e.Op.Key,
		ExpiresAt: e.Op.ExpiresAt,
	}
	switch e.Op.Type {
	case "put":
		m.Op = model.OpPut
		m.Value = e.Op.Value
		if m.Value == nil {
			// A put of an empty value is still a live entry.
			m.Value = []byte{}
		}
	case "delete":
		m.Op = model.OpDelete
	default:
		return model.Mutation{}, fmt.Errorf("%w: %q at seq %d", ErrInvalidOperation, e.Op.Type, e.Seq)
	}
	return m, nil
}
