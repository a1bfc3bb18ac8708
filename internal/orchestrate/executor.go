package orchestrate

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
	"github.com/gatehouse-dev/gatehouse/internal/platform/hcloud"
	"github.com/gatehouse-dev/gatehouse/internal/reconcile"
	"github.com/gatehouse-dev/gatehouse/internal/secrets"
	"github.com/gatehouse-dev/gatehouse/internal/state"
	"github.com/gatehouse-dev/gatehouse/internal/topology"
	"github.com/gatehouse-dev/gatehouse/internal/util/async"
	"github.com/gatehouse-dev/gatehouse/internal/util/naming"
)

// executor maps plan actions onto provider calls and records results
// into the cluster state. One executor serves one operation run.
type executor struct {
	provider hcloud.Provider
	images   ImageResolver
	desired  *topology.Topology
	log      logr.Logger

	// mu guards st and the report slices during parallel ranks.
	mu sync.Mutex
	st *state.ClusterState

	// bootstrap is generated lazily on the first server create and
	// shared by every node of the run. The private half never leaves
	// this process.
	bootstrapOnce sync.Once
	bootstrap     *secrets.BootstrapKey
	bootstrapErr  error
}

func newExecutor(provider hcloud.Provider, images ImageResolver, desired *topology.Topology, st *state.ClusterState, log logr.Logger) *executor {
	return &executor{
		provider: provider,
		images:   images,
		desired:  desired,
		st:       st,
		log:      log,
	}
}

// runRank executes one rank's actions in parallel, collecting every
// failure, and records per-action outcomes into the report.
func (e *executor) runRank(ctx context.Context, actions []reconcile.Action, report *Report) error {
	tasks := make([]async.Task, 0, len(actions))
	for _, action := range actions {
		action := action
		tasks = append(tasks, async.Task{
			Name: action.String(),
			Func: func(ctx context.Context) error {
				err := e.execute(ctx, action)
				e.mu.Lock()
				if err != nil {
					report.Failed = append(report.Failed, action.String())
				} else {
					report.Succeeded = append(report.Succeeded, action.String())
				}
				e.mu.Unlock()
				if err != nil {
					return &errdefs.ProvisioningError{Node: action.NodeID, Verb: string(action.Verb), Err: err}
				}
				return nil
			},
		})
	}

	err := async.RunAll(ctx, tasks)
	e.mu.Lock()
	sort.Strings(report.Succeeded)
	sort.Strings(report.Failed)
	e.mu.Unlock()
	return err
}

func (e *executor) execute(ctx context.Context, action reconcile.Action) error {
	e.log.Info("executing action", "verb", string(action.Verb), "node", action.NodeID)
	switch action.Kind {
	case state.KindNetwork:
		return e.executeNetwork(ctx, action)
	case state.KindFirewall:
		return e.executeFirewall(ctx, action)
	case state.KindServer:
		return e.executeServer(ctx, action)
	}
	return fmt.Errorf("unknown resource kind %q", action.Kind)
}

func (e *executor) executeNetwork(ctx context.Context, action reconcile.Action) error {
	if action.Verb == reconcile.VerbDestroy {
		if err := e.provider.DeleteNetwork(ctx, action.NodeID); err != nil {
			return err
		}
		e.removeResource(action.NodeID)
		return nil
	}

	topo := e.desired
	id, err := e.provider.EnsureNetwork(ctx, action.NodeID, topo.Network.CIDR, e.labels())
	if err != nil {
		return err
	}

	subnets := []string{topo.Network.PublicCIDR}
	for _, role := range []topology.Role{topology.RoleControlPlane, topology.RoleWorker, topology.RoleMonitoring} {
		subnet, err := topo.SubnetFor(role)
		if err != nil {
			return err
		}
		subnets = append(subnets, subnet)
	}
	for _, subnet := range subnets {
		if err := e.provider.EnsureSubnet(ctx, id, subnet, topo.Network.Zone); err != nil {
			return err
		}
	}

	e.putResource(action.NodeID, state.Resource{
		ID:        id,
		Kind:      state.KindNetwork,
		SpecHash:  action.SpecHash,
		CreatedAt: time.Now(),
	})
	return nil
}

func (e *executor) executeFirewall(ctx context.Context, action reconcile.Action) error {
	if action.Verb == reconcile.VerbDestroy {
		if err := e.provider.DeleteFirewall(ctx, action.NodeID); err != nil {
			return err
		}
		e.removeResource(action.NodeID)
		return nil
	}

	rules, err := hcloud.BuildRules(e.desired)
	if err != nil {
		return err
	}
	id, err := e.provider.EnsureFirewall(ctx, action.NodeID, rules, e.labels())
	if err != nil {
		return err
	}
	e.putResource(action.NodeID, state.Resource{
		ID:        id,
		Kind:      state.KindFirewall,
		SpecHash:  action.SpecHash,
		CreatedAt: time.Now(),
	})
	return nil
}

func (e *executor) executeServer(ctx context.Context, action reconcile.Action) error {
	switch action.Verb {
	case reconcile.VerbDestroy:
		if err := e.provider.DeleteServer(ctx, action.NodeID); err != nil {
			return err
		}
		e.removeResource(action.NodeID)
		return nil
	case reconcile.VerbUpdate:
		// Node identity is its name; a spec change replaces the server
		// behind the same identity.
		if err := e.provider.DeleteServer(ctx, action.NodeID); err != nil {
			return err
		}
		e.removeResource(action.NodeID)
	}

	group := e.desired.Group(action.Group)
	if group == nil {
		return errdefs.Inputf("no desired group for role %q", action.Group)
	}

	imageID, err := e.images.Resolve(ctx, group.Image)
	if err != nil {
		return err
	}
	key, err := e.bootstrapKey()
	if err != nil {
		return err
	}

	ip, err := e.desired.NodeIP(action.Group, action.Index)
	if err != nil {
		return err
	}

	id, err := e.provider.CreateServer(ctx, hcloud.ServerSpec{
		Name:       action.NodeID,
		ServerType: group.ServerType,
		ImageID:    imageID,
		Location:   e.desired.Location,
		NetworkID:  e.networkID(),
		PrivateIP:  net.ParseIP(ip),
		PublicIPv4: action.Group == topology.RoleGateway,
		Labels:     group.Labels,
		UserData:   bootstrapUserData(key),
	})
	if err != nil {
		return err
	}

	res := state.Resource{
		ID:        id,
		Kind:      state.KindServer,
		Group:     action.Group,
		SpecHash:  action.SpecHash,
		CreatedAt: time.Now(),
	}
	if action.Group == topology.RoleWorker {
		// Workers enter the fleet state machine; the health pass
		// promotes them once they come up.
		res.Status = state.StatusJoining
	}
	e.putResource(action.NodeID, res)
	return nil
}

func (e *executor) bootstrapKey() (*secrets.BootstrapKey, error) {
	e.bootstrapOnce.Do(func() {
		e.bootstrap, e.bootstrapErr = secrets.GenerateBootstrapKey()
	})
	return e.bootstrap, e.bootstrapErr
}

func (e *executor) networkID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.Resources[naming.Network(e.desired.ClusterName)].ID
}

func (e *executor) labels() map[string]string {
	return map[string]string{"cluster": e.desired.ClusterName}
}

func (e *executor) putResource(nodeID string, res state.Resource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st.Resources[nodeID] = res
}

func (e *executor) removeResource(nodeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.st.Resources, nodeID)
}

func bootstrapUserData(key *secrets.BootstrapKey) string {
	return fmt.Sprintf("#cloud-config\nusers:\n  - name: gatehouse\n    ssh_authorized_keys:\n      - %s", key.AuthorizedKey)
}
