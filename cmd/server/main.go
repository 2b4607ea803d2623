package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trandb/internal/config"
	"trandb/internal/node"
)

func main() {
	roleFlag := flag.String("role", envOrDefault("KV_ROLE", "primary"), "Node role: primary or replica")
	topoFlag := flag.String("topology", envOrDefault("KV_TOPOLOGY", ""), "Path to topology JSON file")
	flag.Parse()

	role, err := config.ParseRole(*roleFlag)
	if err != nil {
		log.Fatalf("parse role: %v", err)
	}
	if *topoFlag == "" {
		log.Fatal("a topology file is required (-topology or KV_TOPOLOGY)")
	}

	topo, err := config.LoadTopology(*topoFlag)
	if err != nil {
		log.Fatalf("load topology: %v", err)
	}
	addr, err := topo.BindAddr(role)
	if err != nil {
		log.Fatalf("resolve bind address: %v", err)
	}

	replicaAddr := ""
	if role == config.RolePrimary {
		replicaAddr = topo.ReplicaAddr
		if replicaAddr == "" {
			log.Print("no replica_addr configured; running single-node")
		}
	}

	n := node.New(node.Options{Role: role, ReplicaAddr: replicaAddr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           n.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("starting %s on %s", role, addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
