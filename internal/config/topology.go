// Package config holds the process configuration surface: the cluster
// topology file and the node role.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Role this process plays in the cluster.
type Role string

const (
	RolePrimary Role = "primary"
	RoleReplica Role = "replica"
)

// ParseRole validates a role string from flags or the environment.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePrimary, RoleReplica:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q (want primary or replica)", s)
	}
}

// Topology describes the cluster. An absent replica_addr means single-node
// mode: the primary never touches the pending queue at all.
type Topology struct {
	PrimaryAddr string `json:"primary_addr"`
	ReplicaAddr string `json:"replica_addr,omitempty"`
}

// LoadTopology reads and validates a topology JSON file.
func LoadTopology(path string) (Topology, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Topology{}, fmt.Errorf("read topology: %w", err)
	}
	var t Topology
	if err := json.Unmarshal(raw, &t); err != nil {
		return Topology{}, fmt.Errorf("parse topology: %w", err)
	}
	if t.PrimaryAddr == "" {
		return Topology{}, fmt.Errorf("topology %s: primary_addr is required", path)
	}
	return t, nil
}

// BindAddr returns the listen address for the given role.
func (t Topology) BindAddr(role Role) (string, error) {
	switch role {
	case RolePrimary:
		return t.PrimaryAddr, nil
	case RoleReplica:
		if t.ReplicaAddr == "" {
			return "", fmt.Errorf("replica_addr missing from topology")
		}
		return t.ReplicaAddr, nil
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
}
