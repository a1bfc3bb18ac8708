package handlers

import (
	"context"
	"testing"

	"github.com/go-logr/logr"

	"github.com/gatehouse-dev/gatehouse/internal/fleet"
	"github.com/gatehouse-dev/gatehouse/internal/orchestrate"
	"github.com/gatehouse-dev/gatehouse/internal/platform/hcloud"
	"github.com/gatehouse-dev/gatehouse/internal/secrets"
	"github.com/gatehouse-dev/gatehouse/internal/state"
	"github.com/gatehouse-dev/gatehouse/internal/topology"
)

type staticImages struct{}

func (staticImages) Resolve(_ context.Context, _ string) (string, error) { return "77", nil }

func testTopology() (*topology.Topology, error) {
	topo := &topology.Topology{
		ClusterName:  "prod",
		Location:     "fsn1",
		Gateway:      topology.NodeGroup{ServerType: "cx22", Image: "hardened-gw-v3"},
		ControlPlane: topology.NodeGroup{ServerType: "cx32", Image: "cluster-node-v3"},
		Workers:      topology.NodeGroup{Count: 2, ServerType: "cx32", Image: "cluster-node-v3"},
		Monitoring:   topology.NodeGroup{ServerType: "cx22", Image: "cluster-node-v3"},
		Policy: topology.Policy{Rules: []topology.Rule{
			{Name: "ssh-in", Source: "external", Destination: topology.RoleGateway, Port: "22"},
		}},
	}
	if err := topo.ApplyDefaults(); err != nil {
		return nil, err
	}
	return topo, nil
}

// testFakes swaps every factory variable for in-memory fakes and
// restores them when the test finishes.
type testFakes struct {
	provider *hcloud.FakeProvider
	store    *state.MemoryStore
}

func setupFakes(t *testing.T) *testFakes {
	t.Helper()

	fakes := &testFakes{
		provider: hcloud.NewFakeProvider(),
		store:    state.NewMemoryStore(),
	}

	origLoad := loadTopology
	origSecrets := newSecretsProvider
	origProvider := newProvider
	origStore := newStore
	origImages := newImageResolver
	origWorkloads := newWorkloadLister
	origLogger := newLogger
	t.Cleanup(func() {
		loadTopology = origLoad
		newSecretsProvider = origSecrets
		newProvider = origProvider
		newStore = origStore
		newImageResolver = origImages
		newWorkloadLister = origWorkloads
		newLogger = origLogger
	})

	loadTopology = func(_ string) (*topology.Topology, error) { return testTopology() }
	newSecretsProvider = func() secrets.Provider {
		return secrets.StaticProvider{Creds: secrets.Credentials{ProviderToken: "test-token"}}
	}
	newProvider = func(_ secrets.Secret) hcloud.Provider { return fakes.provider }
	newStore = func(_ context.Context, _ secrets.Credentials, _ string) (state.Store, error) {
		return fakes.store, nil
	}
	newImageResolver = func(_ secrets.Secret) orchestrate.ImageResolver { return staticImages{} }
	newWorkloadLister = func() fleet.WorkloadLister { return noWorkloads{} }
	newLogger = func() logr.Logger { return logr.Discard() }

	return fakes
}
