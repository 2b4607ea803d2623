// Package client is the Go client for the trandb HTTP surface. Every Put
// and Delete carries a freshly generated idempotency key unless the caller
// pins one to replay a logical operation.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"trandb/internal/model"
)

// ErrNotFound reports a 404 for the requested key.
var ErrNotFound = errors.New("key not found")

// ErrKeyTooLarge and ErrValueTooLarge report limit violations caught
// client-side, before any request is sent.
var (
	ErrKeyTooLarge   = fmt.Errorf("key exceeds maximum size of %d bytes", model.MaxKeySize)
	ErrValueTooLarge = fmt.Errorf("value exceeds maximum size of %d bytes", model.MaxValueSize)
)

// StatusError surfaces any other non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Config for a Client.
type Config struct {
	// Target is the node to talk to, as host:port. Point it at the primary
	// for writes; a replica answers 405.
	Target string

	// HTTPClient override; defaults to a plain http.Client.
	HTTPClient *http.Client
}

// Client talks to one node.
type Client struct {
	target string
	http   *http.Client
}

func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{target: cfg.Target, http: hc}
}

// SetTarget re-aims the client, e.g. at the replica for read checks.
func (c *Client) SetTarget(target string) {
	c.target = target
}

func (c *Client) keyURL(key string) string {
	return fmt.Sprintf("http://%s/keys/%s", c.target, key)
}

// KV is the result of a read or write: the value (reads only), the version
// the server reported via ETag, and whether the entry's TTL has elapsed.
type KV struct {
	Value   []byte
	Version uint64
	Expired bool
}

// Get fetches a key. Absent, tombstoned and expired keys all return
// ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) (KV, error) {
	kv, err := c.GetAllowingExpired(ctx, key)
	if err != nil {
		return KV{}, err
	}
	if kv.Expired {
		return KV{}, ErrNotFound
	}
	return kv, nil
}

// GetAllowingExpired fetches a key even when its TTL has elapsed. Check
// KV.Expired to tell whether the value is stale.
func (c *Client) GetAllowingExpired(ctx context.Context, key string) (KV, error) {
	if len(key) > model.MaxKeySize {
		return KV{}, ErrKeyTooLarge
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.keyURL(key), nil)
	if err != nil {
		return KV{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return KV{}, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return KV{}, c.errorFrom(resp)
	}
	value, err := io.ReadAll(resp.Body)
	if err != nil {
		return KV{}, fmt.Errorf("network error: %w", err)
	}
	version, err := parseETag(resp.Header.Get("ETag"))
	if err != nil {
		return KV{}, err
	}
	return KV{
		Value:   value,
		Version: version,
		Expired: resp.Header.Get("X-Expired") == "true",
	}, nil
}

// Put stores value under key and returns the assigned version. opts may pin
// an idempotency key or an absolute expiry.
func (c *Client) Put(ctx context.Context, key string, value []byte, opts ...Option) (uint64, error) {
	if len(key) > model.MaxKeySize {
		return 0, ErrKeyTooLarge
	}
	if len(value) > model.MaxValueSize {
		return 0, ErrValueTooLarge
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.keyURL(key), bytes.NewReader(value))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	applyOptions(req, opts)
	return c.doMutation(req, http.StatusOK)
}

// Delete tombstones key. The returned version is 0 when the key was already
// absent (the server answered 204).
func (c *Client) Delete(ctx context.Context, key string, opts ...Option) (uint64, error) {
	if len(key) > model.MaxKeySize {
		return 0, ErrKeyTooLarge
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.keyURL(key), nil)
	if err != nil {
		return 0, err
	}
	applyOptions(req, opts)
	return c.doMutation(req, http.StatusOK, http.StatusNoContent)
}

// Option adjusts one request.
type Option func(*http.Request)

// WithIdempotencyKey pins the idempotency key instead of generating one, for
// deliberate replays of the same logical operation.
func WithIdempotencyKey(token string) Option {
	return func(r *http.Request) {
		r.Header.Set("Idempotency-Key", token)
	}
}

// WithExpiry sets an absolute Unix-seconds expiry on a Put via X-TTL.
func WithExpiry(unixSecs uint64) Option {
	return func(r *http.Request) {
		r.Header.Set("X-TTL", strconv.FormatUint(unixSecs, 10))
	}
}

func applyOptions(req *http.Request, opts []Option) {
	for _, o := range opts {
		o(req)
	}
	if req.Header.Get("Idempotency-Key") == "" {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
}

func (c *Client) doMutation(req *http.Request, okStatuses ...int) (uint64, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	ok := false
	for _, s := range okStatuses {
		if resp.StatusCode == s {
			ok = true
		}
	}
	if !ok {
		return 0, c.errorFrom(resp)
	}
	if resp.StatusCode == http.StatusNoContent {
		return 0, nil
	}
	return parseETag(resp.Header.Get("ETag"))
}

func (c *Client) errorFrom(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	var body struct {
		Error string `json:"error"`
	}
	msg := fmt.Sprintf("server returned status: %d", resp.StatusCode)
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		msg = body.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}

func parseETag(raw string) (uint64, error) {
	trimmed := strings.Trim(raw, `"`)
	if trimmed == "" {
		return 0, errors.New("server response missing ETag header")
	}
	v, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed ETag %q: %w", raw, err)
	}
	return v, nil
}
