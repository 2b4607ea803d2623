// Package node assembles a process: store, idempotency coordinator,
// replication pieces and the HTTP surface, wired per role.
package node

import (
	"context"
	"net/http"
	"time"

	"trandb/internal/api"
	"trandb/internal/config"
	"trandb/internal/idempotency"
	"trandb/internal/metrics"
	"trandb/internal/model"
	"trandb/internal/replication"
	"trandb/internal/store"
)

const janitorInterval = time.Minute

// Options configure a Node.
type Options struct {
	Role config.Role

	// ReplicaAddr is the replication target, primary only. Empty means
	// single-node mode: no queue, no sender, the store never sees a hook.
	ReplicaAddr string

	// Clock override for tests; defaults to the system clock.
	Clock model.Clock

	// Replicator override for tests; defaults to the HTTP replicator
	// aimed at ReplicaAddr.
	Replicator replication.Replicator
}

// Node is one running store process.
type Node struct {
	Role    config.Role
	Store   *store.Store
	Idem    *idempotency.Coordinator
	Queue   *replication.Queue // nil unless a replicated primary
	Metrics *metrics.Metrics

	sender  *replication.Sender
	handler http.Handler
}

// New wires a node. Call Start to launch its background work.
func New(opts Options) *Node {
	if opts.Clock == nil {
		opts.Clock = model.SystemClock{}
	}

	n := &Node{
		Role:    opts.Role,
		Idem:    idempotency.New(),
		Metrics: &metrics.Metrics{},
	}

	var onMutation func(model.Mutation)
	if opts.Role == config.RolePrimary && (opts.ReplicaAddr != "" || opts.Replicator != nil) {
		n.Queue = replication.NewQueue()
		onMutation = n.Queue.Append

		replicator := opts.Replicator
		if replicator == nil {
			replicator = replication.NewHTTPReplicator(opts.ReplicaAddr)
		}
		n.sender = replication.NewSender(n.Queue, replicator, n.Metrics)
	}

	n.Store = store.New(store.Config{
		Clock:      opts.Clock,
		OnMutation: onMutation,
	})

	var receiver *replication.Receiver
	if opts.Role == config.RoleReplica {
		receiver = replication.NewReceiver(n.Store, n.Metrics)
	}

	n.handler = api.NewServer(api.ServerConfig{
		Role:     opts.Role,
		Store:    n.Store,
		Idem:     n.Idem,
		Receiver: receiver,
		Metrics:  n.Metrics,
		Clock:    opts.Clock,
	}).Handler()

	return n
}

// Handler returns the node's HTTP handler.
func (n *Node) Handler() http.Handler {
	return n.handler
}

// Start launches the replication sender (if configured) and the idempotency
// janitor. Both exit when ctx is cancelled; any queue content still unacked
// at that point is discarded with the process.
func (n *Node) Start(ctx context.Context) {
	if n.sender != nil {
		go n.sender.Run(ctx)
	}
	go n.janitor(ctx)
}

func (n *Node) janitor(ctx context.Context) {
	t := time.NewTicker(janitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if purged := n.Idem.PurgeExpired(); purged > 0 {
				n.Metrics.RecordsPurged.Add(int64(purged))
			}
		}
	}
}
