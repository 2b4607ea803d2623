// Package api is the HTTP surface: client key operations on the primary,
// the replication endpoint on the replica, plus health and metrics.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"trandb/internal/config"
	"trandb/internal/idempotency"
	"trandb/internal/metrics"
	"trandb/internal/model"
	"trandb/internal/replication"
	"trandb/internal/store"
)

const lockTimeoutMsg = "Server error: Lock acquisition timed out"

// Server holds the handler dependencies for one node.
type Server struct {
	role     config.Role
	store    *store.Store
	idem     *idempotency.Coordinator
	receiver *replication.Receiver // nil on the primary
	metrics  *metrics.Metrics
	clock    model.Clock
}

// ServerConfig wires a Server.
type ServerConfig struct {
	Role     config.Role
	Store    *store.Store
	Idem     *idempotency.Coordinator
	Receiver *replication.Receiver
	Metrics  *metrics.Metrics
	Clock    model.Clock
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Clock == nil {
		cfg.Clock = model.SystemClock{}
	}
	return &Server{
		role:     cfg.Role,
		store:    cfg.Store,
		idem:     cfg.Idem,
		receiver: cfg.Receiver,
		metrics:  cfg.Metrics,
		clock:    cfg.Clock,
	}
}

// Handler builds the router for this node's role.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/metrics", s.handleMetrics)

	r.Get("/keys/{key}", s.handleGet)
	r.Put("/keys/{key}", s.handlePut)
	r.Delete("/keys/{key}", s.handleDelete)

	if s.receiver != nil {
		r.Post("/replicate", s.handleReplicate)
	}
	return r
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func setETag(w http.ResponseWriter, version uint64) {
	w.Header().Set("ETag", fmt.Sprintf("%q", strconv.FormatUint(version, 10)))
}

// checkKeyOp runs the gates shared by all key handlers: role and key size.
func (s *Server) checkKeyOp(w http.ResponseWriter, key string) bool {
	if s.role == config.RoleReplica {
		errorJSON(w, http.StatusMethodNotAllowed, "Replica does not accept key operations")
		return false
	}
	if len(key) > model.MaxKeySize {
		errorJSON(w, http.StatusBadRequest,
			fmt.Sprintf("Key exceeds maximum size of %d bytes", model.MaxKeySize))
		return false
	}
	return true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !s.checkKeyOp(w, key) {
		return
	}

	entry, err := s.store.Get(r.Context(), key)
	switch {
	case errors.Is(err, store.ErrLockTimeout):
		s.metrics.LockTimeouts.Add(1)
		errorJSON(w, http.StatusServiceUnavailable, lockTimeoutMsg)
	case errors.Is(err, store.ErrNotFound):
		errorJSON(w, http.StatusNotFound, fmt.Sprintf("Key not found: %s", key))
	default:
		setETag(w, entry.Version)
		if entry.Expired(s.clock) {
			w.Header().Set("X-Expired", "true")
		}
		_, _ = w.Write(entry.Value)
	}
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !s.checkKeyOp(w, key) {
		return
	}

	// Read one byte past the limit so oversized values are a clean 400.
	body, err := io.ReadAll(io.LimitReader(r.Body, model.MaxValueSize+1))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > model.MaxValueSize {
		errorJSON(w, http.StatusBadRequest,
			fmt.Sprintf("Value exceeds maximum size of %d bytes", model.MaxValueSize))
		return
	}

	var expiresAt uint64
	if raw := r.Header.Get("X-TTL"); raw != "" {
		ts, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			errorJSON(w, http.StatusBadRequest, "X-TTL must be a non-negative integer")
			return
		}
		expiresAt = ts
	}

	token := r.Header.Get("Idempotency-Key")
	if token == "" {
		errorJSON(w, http.StatusBadRequest, "Idempotency-Key header is required")
		return
	}

	ticket, cached, err := s.idem.Begin(token, http.MethodPut, key)
	if err != nil {
		s.metrics.IdempotencyErrors.Add(1)
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if cached != nil {
		s.metrics.ReplaysServed.Add(1)
		s.writeOutcome(w, *cached)
		return
	}

	version, err := s.store.Put(r.Context(), key, body, expiresAt)
	if err != nil {
		s.metrics.LockTimeouts.Add(1)
		ticket.Fail(idempotency.Outcome{StatusCode: http.StatusServiceUnavailable})
		errorJSON(w, http.StatusServiceUnavailable, lockTimeoutMsg)
		return
	}

	s.metrics.MutationsApplied.Add(1)
	out := idempotency.Outcome{StatusCode: http.StatusOK, Version: version, HasVersion: true}
	ticket.Complete(out)
	s.writeOutcome(w, out)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !s.checkKeyOp(w, key) {
		return
	}

	token := r.Header.Get("Idempotency-Key")
	if token == "" {
		errorJSON(w, http.StatusBadRequest, "Idempotency-Key header is required")
		return
	}

	ticket, cached, err := s.idem.Begin(token, http.MethodDelete, key)
	if err != nil {
		s.metrics.IdempotencyErrors.Add(1)
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if cached != nil {
		s.metrics.ReplaysServed.Add(1)
		s.writeOutcome(w, *cached)
		return
	}

	version, tombstoned, err := s.store.Delete(r.Context(), key)
	if err != nil {
		s.metrics.LockTimeouts.Add(1)
		ticket.Fail(idempotency.Outcome{StatusCode: http.StatusServiceUnavailable})
		errorJSON(w, http.StatusServiceUnavailable, lockTimeoutMsg)
		return
	}

	var out idempotency.Outcome
	if tombstoned {
		s.metrics.MutationsApplied.Add(1)
		out = idempotency.Outcome{StatusCode: http.StatusOK, Version: version, HasVersion: true}
	} else {
		s.metrics.NoopDeletes.Add(1)
		out = idempotency.Outcome{StatusCode: http.StatusNoContent}
	}
	ticket.Complete(out)
	s.writeOutcome(w, out)
}

// writeOutcome renders a stored or fresh operation outcome. Every duplicate
// of a token goes through here with the identical Outcome.
func (s *Server) writeOutcome(w http.ResponseWriter, out idempotency.Outcome) {
	if out.StatusCode == http.StatusServiceUnavailable {
		errorJSON(w, http.StatusServiceUnavailable, lockTimeoutMsg)
		return
	}
	if out.HasVersion {
		setETag(w, out.Version)
	}
	w.WriteHeader(out.StatusCode)
}

func (s *Server) handleReplicate(w http.ResponseWriter, r *http.Request) {
	var req replication.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, fmt.Sprintf("malformed batch: %v", err))
		return
	}

	resp, err := s.receiver.Apply(r.Context(), req)
	switch {
	case errors.Is(err, replication.ErrInvalidOperation):
		log.Printf("replicate: rejecting batch: %v", err)
		errorJSON(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrLockTimeout):
		errorJSON(w, http.StatusServiceUnavailable, lockTimeoutMsg)
	case err != nil:
		errorJSON(w, http.StatusInternalServerError, err.Error())
	default:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.metrics.Snapshot())
}
