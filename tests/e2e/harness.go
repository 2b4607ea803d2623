package e2e

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trandb/internal/config"
	"trandb/internal/model"
	"trandb/internal/node"
	"trandb/pkg/client"
)

// cluster is an in-process primary+replica pair wired over real HTTP.
type cluster struct {
	primary *node.Node
	replica *node.Node
	client  *client.Client
}

func startCluster(t *testing.T) *cluster {
	t.Helper()

	replica := node.New(node.Options{Role: config.RoleReplica})
	replicaSrv := httptest.NewServer(replica.Handler())

	primary := node.New(node.Options{
		Role:        config.RolePrimary,
		ReplicaAddr: strings.TrimPrefix(replicaSrv.URL, "http://"),
	})
	primarySrv := httptest.NewServer(primary.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	primary.Start(ctx)
	replica.Start(ctx)

	t.Cleanup(func() {
		cancel()
		primarySrv.Close()
		replicaSrv.Close()
	})

	return &cluster{
		primary: primary,
		replica: replica,
		client:  client.New(client.Config{Target: strings.TrimPrefix(primarySrv.URL, "http://")}),
	}
}

// waitReplicaEntry polls the replica until key reaches wantVersion or the
// deadline passes.
func (c *cluster) waitReplicaEntry(t *testing.T, key string, wantVersion uint64) model.Entry {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := c.replica.Store.Snapshot(context.Background())
		if err == nil {
			if e, ok := snap[key]; ok && e.Version == wantVersion {
				return e
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	snap, _ := c.replica.Store.Snapshot(context.Background())
	t.Fatalf("replica never reached %s@%d; state: %+v", key, wantVersion, snap)
	return model.Entry{}
}

// reserveAddr grabs a free loopback address and releases it so a server can
// bind it later.
func reserveAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve addr: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

// serveOn starts handler on a fixed address, for bringing a replica up at
// the address the primary is already retrying.
func serveOn(t *testing.T, addr string, handler http.Handler) {
	t.Helper()
	l, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("listen %s: %v", addr, err)
	}
	srv := &http.Server{Handler: handler}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })
}
