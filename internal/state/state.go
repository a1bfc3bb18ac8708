// Package state holds the durable record of what has been applied.
//
// ClusterState is the single source of truth for reconciliation: the
// last-applied topology plus the mapping from logical node identifiers
// to provisioned resource identifiers. It is owned by the Store and
// mutated only while the cluster lock is held.
package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gatehouse-dev/gatehouse/internal/topology"
)

// ResourceKind classifies a provisioned resource.
type ResourceKind string

const (
	KindNetwork  ResourceKind = "network"
	KindFirewall ResourceKind = "firewall"
	KindServer   ResourceKind = "server"
)

// Worker membership states. A member leaving the fleet has its
// resource removed from state rather than carrying a terminal status.
const (
	StatusJoining  = "joining"
	StatusHealthy  = "healthy"
	StatusDraining = "draining"
)

// Resource maps one logical identifier to a provider resource.
type Resource struct {
	ID       string        `json:"id"`
	Kind     ResourceKind  `json:"kind"`
	Group    topology.Role `json:"group,omitempty"`
	SpecHash string        `json:"spec_hash"`

	// Fleet bookkeeping, populated for worker resources only.
	Status         string     `json:"status,omitempty"`
	JoinToken      string     `json:"join_token,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UnhealthySince *time.Time `json:"unhealthy_since,omitempty"`
	DrainStarted   *time.Time `json:"drain_started,omitempty"`
}

// ClusterState is the last-applied topology and resource mapping.
// Revision implements the store's compare-and-swap contract: Save
// succeeds only when the stored revision still matches.
type ClusterState struct {
	Revision  int64                `json:"revision"`
	Topology  *topology.Topology   `json:"topology,omitempty"`
	Resources map[string]Resource  `json:"resources"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// New returns an empty state at revision zero.
func New() *ClusterState {
	return &ClusterState{Resources: make(map[string]Resource)}
}

// Clone returns a deep copy via JSON round-trip. Stores hand out
// clones so callers can never mutate stored state outside Save.
func (s *ClusterState) Clone() *ClusterState {
	data, err := json.Marshal(s)
	if err != nil {
		// ClusterState contains only JSON-encodable fields.
		panic(fmt.Sprintf("state: clone marshal: %v", err))
	}
	var out ClusterState
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("state: clone unmarshal: %v", err))
	}
	if out.Resources == nil {
		out.Resources = make(map[string]Resource)
	}
	return &out
}

// Redacted returns a copy with credential material removed, for
// display paths. Join tokens live only in the store and in the node's
// own boot configuration.
func (s *ClusterState) Redacted() *ClusterState {
	out := s.Clone()
	for id, res := range out.Resources {
		res.JoinToken = ""
		out.Resources[id] = res
	}
	return out
}

// Group returns the resources belonging to one node group.
func (s *ClusterState) Group(role topology.Role) map[string]Resource {
	out := make(map[string]Resource)
	for id, r := range s.Resources {
		if r.Group == role {
			out[id] = r
		}
	}
	return out
}

// Empty reports whether no resources are recorded.
func (s *ClusterState) Empty() bool {
	return len(s.Resources) == 0
}
