package reconcile

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-dev/gatehouse/internal/state"
	"github.com/gatehouse-dev/gatehouse/internal/topology"
	"github.com/gatehouse-dev/gatehouse/internal/util/naming"
)

func desiredTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo := &topology.Topology{
		ClusterName:  "prod",
		Location:     "fsn1",
		Gateway:      topology.NodeGroup{ServerType: "cx22", Image: "hardened-gw-v3"},
		ControlPlane: topology.NodeGroup{ServerType: "cx32", Image: "cluster-node-v3"},
		Workers:      topology.NodeGroup{Count: 3, ServerType: "cx32", Image: "cluster-node-v3"},
		Monitoring:   topology.NodeGroup{ServerType: "cx22", Image: "cluster-node-v3"},
	}
	require.NoError(t, topo.ApplyDefaults())
	require.NoError(t, topo.Validate())
	return topo
}

// appliedState returns the state an apply of topo would record.
func appliedState(topo *topology.Topology) *state.ClusterState {
	st := state.New()
	st.Resources["prod-net"] = state.Resource{
		ID: "1", Kind: state.KindNetwork, SpecHash: topo.NetworkSpecHash(),
	}
	st.Resources["prod-policy"] = state.Resource{
		ID: "2", Kind: state.KindFirewall, SpecHash: topo.Policy.SpecHash(),
	}
	id := 3
	for _, group := range topo.Groups() {
		for idx := 1; idx <= group.Count; idx++ {
			nodeID := naming.Node(topo.ClusterName, string(group.Role), idx)
			st.Resources[nodeID] = state.Resource{
				ID:       strconv.Itoa(id),
				Kind:     state.KindServer,
				Group:    group.Role,
				SpecHash: group.SpecHash(),
				Status:   state.StatusHealthy,
			}
			id++
		}
	}
	return st
}

func TestDiffFromScratch(t *testing.T) {
	topo := desiredTopology(t)
	plan := Diff(topo, state.New())

	// 1 network + 1 firewall + 1 gateway + 3 control plane + 3 workers
	// + 2 monitoring.
	assert.Len(t, plan.Actions, 11)
	assert.Equal(t, map[string]int{"create": 11}, plan.Counts())

	// The first actions are network then policy, before any server.
	assert.Equal(t, "prod-net", plan.Actions[0].NodeID)
	assert.Equal(t, "prod-policy", plan.Actions[1].NodeID)
	assert.Equal(t, "prod-gateway-1", plan.Actions[2].NodeID)
}

func TestDiffIdempotent(t *testing.T) {
	topo := desiredTopology(t)
	plan := Diff(topo, appliedState(topo))
	assert.True(t, plan.Empty(), "plan against converged state must be empty, got %v", plan.Actions)
}

func TestDiffRankOrdering(t *testing.T) {
	topo := desiredTopology(t)
	plan := Diff(topo, state.New())

	lastRank := Rank(-1)
	for _, a := range plan.Actions {
		assert.GreaterOrEqual(t, a.Rank, lastRank)
		lastRank = a.Rank
	}
}

func TestDiffPolicyChangeIsUpdate(t *testing.T) {
	topo := desiredTopology(t)
	st := appliedState(topo)
	topo.Policy.Rules = append(topo.Policy.Rules, topology.Rule{
		Name: "new", Source: "gateway", Destination: topology.RoleControlPlane, Port: "6443",
	})

	plan := Diff(topo, st)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, VerbUpdate, plan.Actions[0].Verb)
	assert.Equal(t, "prod-policy", plan.Actions[0].NodeID)
}

func TestDiffServerSpecChangeIsUpdate(t *testing.T) {
	topo := desiredTopology(t)
	st := appliedState(topo)
	topo.Workers.ServerType = "cx42"

	plan := Diff(topo, st)
	require.Len(t, plan.Actions, 3)
	for _, a := range plan.Actions {
		assert.Equal(t, VerbUpdate, a.Verb)
		assert.Equal(t, topology.RoleWorker, a.Group)
	}
}

func TestDiffMissingWorkerWithDrainingMember(t *testing.T) {
	// Desired 3 workers, observed 1 healthy + 1 draining: exactly one
	// create for the missing slot, no destroys.
	topo := desiredTopology(t)
	workerHash := topo.Workers.SpecHash()

	st := appliedState(topo)
	for nodeID, r := range st.Resources {
		if r.Group == topology.RoleWorker {
			delete(st.Resources, nodeID)
		}
	}
	st.Resources["prod-worker-1"] = state.Resource{
		ID: "10", Kind: state.KindServer, Group: topology.RoleWorker,
		SpecHash: workerHash, Status: state.StatusHealthy,
	}
	st.Resources["prod-worker-2"] = state.Resource{
		ID: "11", Kind: state.KindServer, Group: topology.RoleWorker,
		SpecHash: workerHash, Status: state.StatusDraining,
	}

	plan := Diff(topo, st)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, VerbCreate, plan.Actions[0].Verb)
	assert.Equal(t, "prod-worker-3", plan.Actions[0].NodeID)
}

func TestDiffExcessDrainingWorkerNotDestroyed(t *testing.T) {
	topo := desiredTopology(t)
	workerHash := topo.Workers.SpecHash()
	st := appliedState(topo)
	st.Resources["prod-worker-4"] = state.Resource{
		ID: "20", Kind: state.KindServer, Group: topology.RoleWorker,
		SpecHash: workerHash, Status: state.StatusDraining,
	}

	plan := Diff(topo, st)
	assert.True(t, plan.Empty())
}

func TestDiffExcessControlPlaneDestroyed(t *testing.T) {
	topo := desiredTopology(t)
	st := appliedState(topo)
	st.Resources["prod-control-plane-9"] = state.Resource{
		ID: "30", Kind: state.KindServer, Group: topology.RoleControlPlane,
		SpecHash: "stale",
	}

	plan := Diff(topo, st)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, VerbDestroy, plan.Actions[0].Verb)
	assert.Equal(t, "prod-control-plane-9", plan.Actions[0].NodeID)
}

func TestTeardownPlanReversesRanks(t *testing.T) {
	topo := desiredTopology(t)
	plan := TeardownPlan(appliedState(topo))

	assert.Len(t, plan.Actions, 11)
	for _, a := range plan.Actions {
		assert.Equal(t, VerbDestroy, a.Verb)
	}

	ranks := plan.Ranks(true)
	require.NotEmpty(t, ranks)
	// Monitoring first, network last.
	assert.Equal(t, RankMonitoring, ranks[0][0].Rank)
	last := ranks[len(ranks)-1]
	assert.Equal(t, RankNetwork, last[0].Rank)

	// Descending throughout.
	prev := RankMonitoring + 1
	for _, actions := range ranks {
		require.NotEmpty(t, actions)
		assert.Less(t, actions[0].Rank, prev)
		prev = actions[0].Rank
	}
}

func TestTeardownIncludesDrainingWorkers(t *testing.T) {
	st := state.New()
	st.Resources["prod-worker-1"] = state.Resource{
		ID: "10", Kind: state.KindServer, Group: topology.RoleWorker,
		Status: state.StatusDraining,
	}

	plan := TeardownPlan(st)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, VerbDestroy, plan.Actions[0].Verb)
}

func TestFingerprintTracksPlanContent(t *testing.T) {
	topo := desiredTopology(t)
	st := appliedState(topo)

	full := TeardownPlan(st)
	again := TeardownPlan(st)
	assert.Equal(t, full.Fingerprint(), again.Fingerprint())

	delete(st.Resources, "prod-worker-1")
	smaller := TeardownPlan(st)
	assert.NotEqual(t, full.Fingerprint(), smaller.Fingerprint())
}

func TestPlanDeterministicWithinRank(t *testing.T) {
	topo := desiredTopology(t)
	a := Diff(topo, state.New())
	b := Diff(topo, state.New())
	assert.Equal(t, a.Actions, b.Actions)
}
