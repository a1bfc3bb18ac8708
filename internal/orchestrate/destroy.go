package orchestrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
	"github.com/gatehouse-dev/gatehouse/internal/reconcile"
	"github.com/gatehouse-dev/gatehouse/internal/state"
)

// DestroyPlan is phase one of teardown: the plan against an empty
// desired state plus the confirmation token that authorizes exactly
// this plan. A cluster change between phases invalidates the token.
func (o *Orchestrator) DestroyPlan(ctx context.Context) (*reconcile.Plan, string, error) {
	observed, err := o.loadState(ctx)
	if err != nil {
		return nil, "", err
	}
	plan := reconcile.TeardownPlan(observed)
	return plan, plan.Fingerprint(), nil
}

// Destroy is phase two: executes the teardown if confirmToken still
// matches the current plan. Ranks run in exactly the reverse of
// apply's order.
func (o *Orchestrator) Destroy(ctx context.Context, confirmToken string) (*Report, error) {
	lock, err := o.acquireLock(ctx, "", "destroy")
	if err != nil {
		return nil, err
	}
	defer o.release(ctx, lock)

	observed, err := o.loadState(ctx)
	if err != nil {
		return nil, err
	}
	if observed.Empty() {
		return &Report{}, nil
	}

	plan := reconcile.TeardownPlan(observed)
	if plan.Fingerprint() != confirmToken {
		return nil, errdefs.Inputf("confirmation token does not match the current teardown plan, re-run the plan phase")
	}

	// Teardown only issues deletes, so it works even when a partial
	// apply never recorded a topology.
	exec := newExecutor(o.provider, o.images, observed.Topology, observed, o.log)
	report, execErr := o.executeRanks(ctx, lock, observed, exec, plan.Ranks(true))

	if execErr == nil && observed.Empty() {
		// Full teardown: drop the state record itself.
		if err := o.store.Delete(ctx); err != nil {
			return report, fmt.Errorf("failed to delete cluster state: %w", err)
		}
	}
	return report, execErr
}

// Status returns the stored cluster state for read-only inspection.
func (o *Orchestrator) Status(ctx context.Context) (*state.ClusterState, error) {
	st, err := o.store.Load(ctx)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return state.New(), nil
		}
		return nil, errdefs.Observation(err)
	}
	return st, nil
}
