package fleet

import (
	"context"
	"fmt"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
	"github.com/gatehouse-dev/gatehouse/internal/metrics"
	"github.com/gatehouse-dev/gatehouse/internal/state"
	"github.com/gatehouse-dev/gatehouse/internal/util/naming"
)

// Tick runs one health reconciliation pass: promote joining members
// that came up, replace members unobservable beyond the grace period,
// and complete drains. It returns the warnings raised during the pass
// (drain timeouts); a non-nil error means the pass itself failed.
func (c *Controller) Tick(ctx context.Context) ([]error, error) {
	lock, err := c.store.AcquireLock(ctx, naming.LockHolder("fleet-tick", newRunID()), c.lockTTL)
	if err != nil {
		if errdefs.IsLockContention(err) {
			metrics.RecordLockContention(c.topo.ClusterName)
		}
		return nil, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			c.log.Error(err, "failed to release fleet lock")
		}
	}()

	st, err := c.store.Load(ctx)
	if err != nil {
		return nil, errdefs.Observation(fmt.Errorf("failed to load state: %w", err))
	}

	var warnings []error
	for _, m := range workerMembers(st) {
		switch m.res.Status {
		case state.StatusJoining:
			err = c.tickJoining(ctx, st, m)
		case state.StatusHealthy:
			err = c.tickHealthy(ctx, st, m)
		case state.StatusDraining:
			var warning error
			warning, err = c.tickDraining(ctx, st, m)
			if warning != nil {
				warnings = append(warnings, warning)
			}
		}
		if err != nil {
			return warnings, err
		}
	}

	c.recordMemberMetrics(st)
	return warnings, c.store.Save(ctx, st)
}

// tickJoining promotes a member whose server is up, and removes one
// whose server vanished before it ever became healthy.
func (c *Controller) tickJoining(ctx context.Context, st *state.ClusterState, m member) error {
	info, err := c.provider.ServerStatus(ctx, m.nodeID)
	if err != nil {
		return err
	}
	if info == nil {
		// joining -> gone: the server never made it.
		c.log.Info("fleet member vanished while joining", "member", m.nodeID)
		delete(st.Resources, m.nodeID)
		return nil
	}
	if info.Running {
		res := m.res
		res.Status = state.StatusHealthy
		res.UnhealthySince = nil
		st.Resources[m.nodeID] = res
		c.log.Info("fleet member joined", "member", m.nodeID)
	}
	return nil
}

// tickHealthy tracks observability. A member unobservable beyond the
// grace period gets a replacement first, then starts draining, so
// capacity recovers before the bad member is torn down.
func (c *Controller) tickHealthy(ctx context.Context, st *state.ClusterState, m member) error {
	info, err := c.provider.ServerStatus(ctx, m.nodeID)
	if err != nil {
		return err
	}

	res := m.res
	if info != nil && info.Running {
		if res.UnhealthySince != nil {
			res.UnhealthySince = nil
			st.Resources[m.nodeID] = res
		}
		return nil
	}

	now := c.now()
	if res.UnhealthySince == nil {
		res.UnhealthySince = &now
		st.Resources[m.nodeID] = res
		return nil
	}
	if now.Sub(*res.UnhealthySince) < c.gracePeriod {
		return nil
	}

	c.log.Info("replacing unobservable fleet member", "member", m.nodeID,
		"unhealthySince", res.UnhealthySince)
	if err := c.grow(ctx, st, 1); err != nil {
		return err
	}
	res.Status = state.StatusDraining
	res.DrainStarted = &now
	st.Resources[m.nodeID] = res
	return nil
}

// tickDraining deprovisions a member once its assignments reach zero.
// Past the drain timeout the member is force-deprovisioned and the
// event surfaced as a warning, never silently dropped.
func (c *Controller) tickDraining(ctx context.Context, st *state.ClusterState, m member) (warning, err error) {
	assignments, err := c.workloads.ActiveAssignments(ctx, m.nodeID)
	if err != nil {
		return nil, errdefs.Observation(fmt.Errorf("failed to query assignments for %s: %w", m.nodeID, err))
	}

	if assignments == 0 {
		return nil, c.deprovision(ctx, st, m)
	}

	if m.res.DrainStarted != nil {
		elapsed := c.now().Sub(*m.res.DrainStarted)
		if elapsed >= c.drainTimeout {
			metrics.RecordDrainTimeout(c.topo.ClusterName)
			if err := c.deprovision(ctx, st, m); err != nil {
				return nil, err
			}
			return &errdefs.DrainTimeout{Member: m.nodeID, Elapsed: elapsed}, nil
		}
	}
	return nil, nil
}

// deprovision completes draining -> gone.
func (c *Controller) deprovision(ctx context.Context, st *state.ClusterState, m member) error {
	c.log.Info("deprovisioning fleet member", "member", m.nodeID)
	if err := c.provider.DeleteServer(ctx, m.nodeID); err != nil {
		return &errdefs.ProvisioningError{Node: m.nodeID, Verb: "destroy", Err: err}
	}
	delete(st.Resources, m.nodeID)
	return nil
}
