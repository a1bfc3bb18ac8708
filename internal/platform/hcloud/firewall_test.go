package hcloud

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hcloudlib "github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
	"github.com/gatehouse-dev/gatehouse/internal/topology"
)

func ruleTopology(t *testing.T, rules []topology.Rule) *topology.Topology {
	t.Helper()
	topo := &topology.Topology{
		ClusterName: "prod",
		Policy:      topology.Policy{Rules: rules},
	}
	require.NoError(t, topo.ApplyDefaults())
	return topo
}

func TestBuildRulesExternalSource(t *testing.T) {
	topo := ruleTopology(t, []topology.Rule{
		{Name: "ssh-in", Source: SourceExternal, Destination: topology.RoleGateway, Port: "22"},
	})

	rules, err := BuildRules(topo)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "22", *rules[0].Port)
	require.Len(t, rules[0].SourceIPs, 1)
	assert.Equal(t, "0.0.0.0/0", rules[0].SourceIPs[0].String())
}

func TestBuildRulesGroupSourceResolvesToSubnet(t *testing.T) {
	topo := ruleTopology(t, []topology.Rule{
		{Name: "api-from-workers", Source: "worker", Destination: topology.RoleControlPlane, Port: "6443"},
	})

	rules, err := BuildRules(topo)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	// Worker subnet is the second slice of the private partition.
	assert.Equal(t, "10.0.144.0/20", rules[0].SourceIPs[0].String())
}

func TestBuildRulesCIDRSource(t *testing.T) {
	topo := ruleTopology(t, []topology.Rule{
		{Name: "office", Source: "198.51.100.0/24", Destination: topology.RoleGateway, Port: "443"},
	})

	rules, err := BuildRules(topo)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.0/24", rules[0].SourceIPs[0].String())
}

func TestBuildRulesPortRange(t *testing.T) {
	topo := ruleTopology(t, []topology.Rule{
		{Name: "nodeports", Source: "gateway", Destination: topology.RoleWorker, Port: "30000-32767"},
	})

	rules, err := BuildRules(topo)
	require.NoError(t, err)
	assert.Equal(t, "30000-32767", *rules[0].Port)
}

func TestFirewallApplyToBuildsSortedSelector(t *testing.T) {
	applyTo := firewallApplyTo(map[string]string{"managed-by": "gatehouse", "cluster": "prod"})

	require.Len(t, applyTo, 1)
	assert.Equal(t, hcloudlib.FirewallResourceTypeLabelSelector, applyTo[0].Type)
	assert.Equal(t, "cluster=prod,managed-by=gatehouse", applyTo[0].LabelSelector.Selector)
}

func TestBuildRulesRejectsBadSource(t *testing.T) {
	topo := ruleTopology(t, []topology.Rule{
		{Name: "broken", Source: "not-a-thing", Destination: topology.RoleGateway, Port: "443"},
	})

	_, err := BuildRules(topo)
	require.Error(t, err)
	assert.True(t, errdefs.IsInput(err))
	assert.Contains(t, err.Error(), "broken")
}
