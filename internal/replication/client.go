package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"trandb/internal/model"
)

// Replicator delivers one ordered batch and reports the highest sequence the
// replica fully applied. Any error is retryable from the sender's point of
// view; it never distinguishes transport failures from apply failures.
type Replicator interface {
	Replicate(ctx context.Context, batch []model.Mutation) (appliedThrough uint64, err error)
}

// HTTPReplicator ships batches to the replica's /replicate endpoint.
type HTTPReplicator struct {
	target string // host:port of the replica
	client *http.Client
}

func NewHTTPReplicator(target string) *HTTPReplicator {
	return &HTTPReplicator{
		target: target,
		client: &http.Client{},
	}
}

func (r *HTTPReplicator) Replicate(ctx context.Context, batch []model.Mutation) (uint64, error) {
	body, err := json.Marshal(EncodeBatch(batch))
	if err != nil {
		return 0, fmt.Errorf("encode batch: %w", err)
	}

	url := fmt.Sprintf("http://%s/replicate", r.target)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("replica returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return out.AppliedThrough, nil
}
