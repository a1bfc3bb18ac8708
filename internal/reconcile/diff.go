package reconcile

import (
	"github.com/gatehouse-dev/gatehouse/internal/state"
	"github.com/gatehouse-dev/gatehouse/internal/topology"
	"github.com/gatehouse-dev/gatehouse/internal/util/naming"
)

var roleRanks = map[topology.Role]Rank{
	topology.RoleGateway:      RankGateway,
	topology.RoleControlPlane: RankControlPlane,
	topology.RoleWorker:       RankWorker,
	topology.RoleMonitoring:   RankMonitoring,
}

// Diff compares the desired topology against the last-applied state
// and returns the minimal plan. Equal inputs yield an empty plan, so
// re-running apply after full convergence performs no mutations.
func Diff(desired *topology.Topology, observed *state.ClusterState) *Plan {
	plan := &Plan{}
	cluster := desired.ClusterName

	diffSingleton(plan, observed, Action{
		Rank:     RankNetwork,
		NodeID:   naming.Network(cluster),
		Kind:     state.KindNetwork,
		SpecHash: desired.NetworkSpecHash(),
	})
	diffSingleton(plan, observed, Action{
		Rank:     RankSecurityPolicy,
		NodeID:   naming.Firewall(cluster),
		Kind:     state.KindFirewall,
		SpecHash: desired.Policy.SpecHash(),
	})

	for _, group := range desired.Groups() {
		diffGroup(plan, desired, observed, group)
	}

	plan.sort()
	return plan
}

func diffSingleton(plan *Plan, observed *state.ClusterState, want Action) {
	current, ok := observed.Resources[want.NodeID]
	switch {
	case !ok:
		want.Verb = VerbCreate
	case current.SpecHash != want.SpecHash:
		want.Verb = VerbUpdate
	default:
		return
	}
	plan.Actions = append(plan.Actions, want)
}

func diffGroup(plan *Plan, desired *topology.Topology, observed *state.ClusterState, group *topology.NodeGroup) {
	rank := roleRanks[group.Role]
	hash := group.SpecHash()
	cluster := desired.ClusterName

	wanted := make(map[string]bool, group.Count)
	for idx := 1; idx <= group.Count; idx++ {
		nodeID := naming.Node(cluster, string(group.Role), idx)
		wanted[nodeID] = true

		current, ok := observed.Resources[nodeID]
		action := Action{
			Rank:     rank,
			NodeID:   nodeID,
			Kind:     state.KindServer,
			Group:    group.Role,
			Index:    idx,
			SpecHash: hash,
		}
		switch {
		case !ok:
			action.Verb = VerbCreate
		case group.Role == topology.RoleWorker && current.Status == state.StatusDraining:
			// The fleet controller owns draining members; once one is
			// gone a later cycle creates its replacement.
			continue
		case current.SpecHash != hash:
			// A server cannot be mutated in place; update means the
			// executor replaces it.
			action.Verb = VerbUpdate
		default:
			continue
		}
		plan.Actions = append(plan.Actions, action)
	}

	for nodeID, current := range observed.Group(group.Role) {
		if wanted[nodeID] {
			continue
		}
		// A draining worker is still present: the fleet controller
		// removes it once its assignments reach zero, so the plan
		// must not race it with a destroy.
		if group.Role == topology.RoleWorker && current.Status == state.StatusDraining {
			continue
		}
		plan.Actions = append(plan.Actions, Action{
			Verb:   VerbDestroy,
			Rank:   rank,
			NodeID: nodeID,
			Kind:   state.KindServer,
			Group:  group.Role,
		})
	}
}

// TeardownPlan is the plan against an empty desired state: destroy
// everything recorded, draining workers included. Rank order is
// reversed at execution time by Plan.Ranks.
func TeardownPlan(observed *state.ClusterState) *Plan {
	plan := &Plan{}
	for nodeID, current := range observed.Resources {
		rank := RankNetwork
		switch current.Kind {
		case state.KindFirewall:
			rank = RankSecurityPolicy
		case state.KindServer:
			rank = roleRanks[current.Group]
		}
		plan.Actions = append(plan.Actions, Action{
			Verb:   VerbDestroy,
			Rank:   rank,
			NodeID: nodeID,
			Kind:   current.Kind,
			Group:  current.Group,
		})
	}
	plan.sort()
	return plan
}
