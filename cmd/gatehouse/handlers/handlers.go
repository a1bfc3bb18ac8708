// Package handlers implements the business logic for CLI commands.
//
// Command definitions in the commands package parse flags and delegate
// here. Handlers are framework-agnostic and are tested without the CLI
// framework by swapping the factory function variables below.
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
	"github.com/gatehouse-dev/gatehouse/internal/fleet"
	"github.com/gatehouse-dev/gatehouse/internal/image"
	"github.com/gatehouse-dev/gatehouse/internal/orchestrate"
	"github.com/gatehouse-dev/gatehouse/internal/platform/hcloud"
	"github.com/gatehouse-dev/gatehouse/internal/secrets"
	"github.com/gatehouse-dev/gatehouse/internal/state"
	"github.com/gatehouse-dev/gatehouse/internal/state/s3store"
	"github.com/gatehouse-dev/gatehouse/internal/topology"

	hcloudlib "github.com/hetznercloud/hcloud-go/v2/hcloud"
)

const defaultTopologyPath = "gatehouse.yaml"

// State store connection settings come from the environment so they
// never sit in the topology file next to the cluster definition.
const (
	envStateEndpoint = "GATEHOUSE_STATE_ENDPOINT"
	envStateRegion   = "GATEHOUSE_STATE_REGION"
	envStateBucket   = "GATEHOUSE_STATE_BUCKET"
)

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadTopology loads the topology file (for testing injection).
	loadTopology = topology.Load

	// newSecretsProvider sources credentials for the run.
	newSecretsProvider = func() secrets.Provider {
		return secrets.EnvProvider{}
	}

	// newProvider creates the cloud provider adapter.
	newProvider = func(token secrets.Secret) hcloud.Provider {
		return hcloud.NewClient(token.Value())
	}

	// newImageResolver creates the snapshot resolver.
	newImageResolver = func(token secrets.Secret) orchestrate.ImageResolver {
		return image.NewResolver(hcloudlib.NewClient(hcloudlib.WithToken(token.Value())))
	}

	// newStore connects the remote state store.
	newStore = func(ctx context.Context, creds secrets.Credentials, cluster string) (state.Store, error) {
		bucket := os.Getenv(envStateBucket)
		if bucket == "" {
			return nil, errdefs.Inputf("%s must name the state bucket", envStateBucket)
		}
		region := os.Getenv(envStateRegion)
		if region == "" {
			region = "us-east-1"
		}
		return s3store.New(ctx, s3store.Options{
			Endpoint:  os.Getenv(envStateEndpoint),
			Region:    region,
			AccessKey: creds.StateAccessKey.Value(),
			SecretKey: creds.StateSecretKey.Value(),
			Bucket:    bucket,
			Cluster:   cluster,
		})
	}

	// newWorkloadLister creates the workload assignment source for
	// drain gating.
	newWorkloadLister = func() fleet.WorkloadLister {
		return noWorkloads{}
	}

	// newLogger builds the run logger.
	newLogger = func() logr.Logger {
		zl, err := zap.NewProduction()
		if err != nil {
			return logr.Discard()
		}
		return zapr.NewLogger(zl)
	}
)

// noWorkloads reports zero active assignments everywhere. The
// standalone CLI has no scheduler integration, so draining members
// complete on the next health pass.
type noWorkloads struct{}

func (noWorkloads) ActiveAssignments(context.Context, string) (int, error) { return 0, nil }

// runtime bundles the dependencies every handler needs: the loaded
// topology plus the provider, store and resolver built from it.
type runtime struct {
	topo     *topology.Topology
	provider hcloud.Provider
	store    state.Store
	images   orchestrate.ImageResolver
	log      logr.Logger
}

func newRuntime(ctx context.Context, configPath string) (*runtime, error) {
	topo, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	creds, err := newSecretsProvider().Credentials()
	if err != nil {
		return nil, err
	}

	store, err := newStore(ctx, creds, topo.ClusterName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect state store: %w", err)
	}

	return &runtime{
		topo:     topo,
		provider: newProvider(creds.ProviderToken),
		store:    store,
		images:   newImageResolver(creds.ProviderToken),
		log:      newLogger(),
	}, nil
}

// loadConfig loads and defaults the topology. An empty path falls back
// to gatehouse.yaml in the current directory.
func loadConfig(configPath string) (*topology.Topology, error) {
	if configPath == "" {
		if _, err := os.Stat(defaultTopologyPath); err != nil {
			return nil, errdefs.Inputf("no topology file found, expected %s (or pass --config)", defaultTopologyPath)
		}
		configPath = defaultTopologyPath
	}
	topo, err := loadTopology(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load topology: %w", err)
	}
	return topo, nil
}

func (rt *runtime) orchestrator() *orchestrate.Orchestrator {
	return orchestrate.New(orchestrate.Config{
		Provider: rt.provider,
		Store:    rt.store,
		Images:   rt.images,
		Log:      rt.log,
	})
}

func (rt *runtime) fleet() *fleet.Controller {
	return fleet.New(fleet.Config{
		Topology:  rt.topo,
		Provider:  rt.provider,
		Store:     rt.store,
		Workloads: newWorkloadLister(),
		Images:    rt.images,
		Log:       rt.log,
	})
}
