// Package fleet manages worker membership after the initial apply.
//
// Members move through joining -> healthy -> draining -> gone, with
// joining -> gone on provisioning failure. There is no partially
// healthy state: a member is either serving or it is not. The
// controller mutates membership only while holding the cluster lock,
// so a scale or health pass never interleaves with an apply.
package fleet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
	"github.com/gatehouse-dev/gatehouse/internal/metrics"
	"github.com/gatehouse-dev/gatehouse/internal/platform/hcloud"
	"github.com/gatehouse-dev/gatehouse/internal/state"
	"github.com/gatehouse-dev/gatehouse/internal/topology"
	"github.com/gatehouse-dev/gatehouse/internal/util/naming"
)

// WorkloadLister reports a member's active workload assignments. The
// control plane backing it is an external collaborator.
type WorkloadLister interface {
	ActiveAssignments(ctx context.Context, member string) (int, error)
}

// ImageResolver turns an image reference into a provider ID.
type ImageResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Config wires a Controller.
type Config struct {
	Topology  *topology.Topology
	Provider  hcloud.Provider
	Store     state.Store
	Workloads WorkloadLister
	Images    ImageResolver
	Log       logr.Logger

	// GracePeriod is how long a healthy member may be unobservable
	// before it is replaced.
	GracePeriod time.Duration
	// DrainTimeout bounds how long a draining member may hold on to
	// assignments before it is force-deprovisioned.
	DrainTimeout time.Duration
	LockTTL      time.Duration
}

// Controller runs the worker fleet state machine.
type Controller struct {
	topo      *topology.Topology
	provider  hcloud.Provider
	store     state.Store
	workloads WorkloadLister
	images    ImageResolver
	log       logr.Logger

	gracePeriod  time.Duration
	drainTimeout time.Duration
	lockTTL      time.Duration

	now func() time.Time
}

// New builds a Controller.
func New(cfg Config) *Controller {
	c := &Controller{
		topo:         cfg.Topology,
		provider:     cfg.Provider,
		store:        cfg.Store,
		workloads:    cfg.Workloads,
		images:       cfg.Images,
		log:          cfg.Log,
		gracePeriod:  cfg.GracePeriod,
		drainTimeout: cfg.DrainTimeout,
		lockTTL:      cfg.LockTTL,
		now:          time.Now,
	}
	if c.gracePeriod == 0 {
		c.gracePeriod = 2 * time.Minute
	}
	if c.drainTimeout == 0 {
		c.drainTimeout = 15 * time.Minute
	}
	if c.lockTTL == 0 {
		c.lockTTL = 5 * time.Minute
	}
	return c
}

// member pairs a worker's logical ID with its recorded resource.
type member struct {
	nodeID string
	res    state.Resource
}

func workerMembers(st *state.ClusterState) []member {
	members := make([]member, 0)
	for nodeID, res := range st.Group(topology.RoleWorker) {
		members = append(members, member{nodeID: nodeID, res: res})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].nodeID < members[j].nodeID })
	return members
}

func countByStatus(members []member) map[string]int {
	counts := make(map[string]int)
	for _, m := range members {
		counts[m.res.Status]++
	}
	return counts
}

// Scale adjusts the fleet toward target. Growth provisions joining
// members immediately; shrinkage only marks members draining, oldest
// healthy first, so healthy+joining never drops below target before
// the excess members are gone.
func (c *Controller) Scale(ctx context.Context, target int) error {
	if target < 0 {
		return errdefs.Inputf("fleet target cannot be negative, got %d", target)
	}

	lock, err := c.store.AcquireLock(ctx, naming.LockHolder("scale", newRunID()), c.lockTTL)
	if err != nil {
		if errdefs.IsLockContention(err) {
			metrics.RecordLockContention(c.topo.ClusterName)
		}
		return err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			c.log.Error(err, "failed to release fleet lock")
		}
	}()

	st, err := c.store.Load(ctx)
	if err != nil {
		return errdefs.Observation(fmt.Errorf("failed to load state: %w", err))
	}

	members := workerMembers(st)
	live := 0
	for _, m := range members {
		if m.res.Status == state.StatusHealthy || m.res.Status == state.StatusJoining {
			live++
		}
	}

	var growErr error
	switch {
	case target > live:
		growErr = c.grow(ctx, st, target-live)
	case target < live:
		c.markDraining(st, live-target)
	}

	// Successful members are persisted even when siblings failed, so a
	// retry resumes instead of re-provisioning.
	c.recordMemberMetrics(st)
	if err := c.store.Save(ctx, st); err != nil {
		growErr = multierror.Append(growErr, err).ErrorOrNil()
	}
	return growErr
}

// grow provisions n new joining members at the lowest free indexes.
// Individual provisioning failures are collected so one bad member
// does not block its siblings.
func (c *Controller) grow(ctx context.Context, st *state.ClusterState, n int) error {
	imageID, err := c.images.Resolve(ctx, c.topo.Workers.Image)
	if err != nil {
		return err
	}

	var errs *multierror.Error
	attempted := make(map[string]bool)
	for i := 0; i < n; i++ {
		idx := c.nextFreeIndex(st, attempted)
		nodeID := naming.Node(c.topo.ClusterName, string(topology.RoleWorker), idx)
		attempted[nodeID] = true

		token, err := newJoinToken()
		if err != nil {
			return err
		}

		spec, err := c.serverSpec(st, nodeID, idx, imageID, token)
		if err != nil {
			return err
		}

		c.log.Info("provisioning fleet member", "member", nodeID)
		providerID, err := c.provider.CreateServer(ctx, spec)
		if err != nil {
			// joining -> gone: nothing recorded, the slot stays free.
			errs = multierror.Append(errs, &errdefs.ProvisioningError{Node: nodeID, Verb: "create", Err: err})
			continue
		}

		st.Resources[nodeID] = state.Resource{
			ID:        providerID,
			Kind:      state.KindServer,
			Group:     topology.RoleWorker,
			SpecHash:  c.topo.Workers.SpecHash(),
			Status:    state.StatusJoining,
			JoinToken: token,
			CreatedAt: c.now(),
		}
	}
	return errs.ErrorOrNil()
}

// markDraining selects the n oldest healthy members and marks them
// draining. Joining members are never selected: they may still be
// completing initialization.
func (c *Controller) markDraining(st *state.ClusterState, n int) {
	healthy := make([]member, 0)
	for _, m := range workerMembers(st) {
		if m.res.Status == state.StatusHealthy {
			healthy = append(healthy, m)
		}
	}
	sort.Slice(healthy, func(i, j int) bool {
		return healthy[i].res.CreatedAt.Before(healthy[j].res.CreatedAt)
	})

	if n > len(healthy) {
		n = len(healthy)
	}
	started := c.now()
	for _, m := range healthy[:n] {
		res := m.res
		res.Status = state.StatusDraining
		res.DrainStarted = &started
		st.Resources[m.nodeID] = res
		c.log.Info("draining fleet member", "member", m.nodeID)
	}
}

func (c *Controller) nextFreeIndex(st *state.ClusterState, attempted map[string]bool) int {
	for idx := 1; ; idx++ {
		nodeID := naming.Node(c.topo.ClusterName, string(topology.RoleWorker), idx)
		if _, ok := st.Resources[nodeID]; !ok && !attempted[nodeID] {
			return idx
		}
	}
}

func (c *Controller) serverSpec(st *state.ClusterState, nodeID string, idx int, imageID, token string) (hcloud.ServerSpec, error) {
	network, ok := st.Resources[naming.Network(c.topo.ClusterName)]
	if !ok {
		return hcloud.ServerSpec{}, errdefs.Inputf("cluster network not provisioned, run apply first")
	}

	ip, err := c.topo.NodeIP(topology.RoleWorker, idx)
	if err != nil {
		return hcloud.ServerSpec{}, err
	}

	return hcloud.ServerSpec{
		Name:       nodeID,
		ServerType: c.topo.Workers.ServerType,
		ImageID:    imageID,
		Location:   c.topo.Location,
		NetworkID:  network.ID,
		PrivateIP:  net.ParseIP(ip),
		Labels:     c.topo.Workers.Labels,
		UserData:   joinUserData(token),
	}, nil
}

func (c *Controller) recordMemberMetrics(st *state.ClusterState) {
	counts := countByStatus(workerMembers(st))
	for _, status := range []string{state.StatusJoining, state.StatusHealthy, state.StatusDraining} {
		metrics.RecordFleetMembers(c.topo.ClusterName, status, counts[status])
	}
}

func newJoinToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate join token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func newRunID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func joinUserData(token string) string {
	// The token is single-use and scoped to one member; the bootstrap
	// agent exchanges it for cluster credentials on first contact.
	return fmt.Sprintf("#cloud-config\nwrite_files:\n  - path: /etc/gatehouse/join-token\n    permissions: \"0600\"\n    content: %s\n", token)
}
