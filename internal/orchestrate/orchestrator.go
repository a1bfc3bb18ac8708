// Package orchestrate drives the cluster lifecycle: apply and
// destroy, serialized behind the cluster lock, executed rank by rank
// with parallelism inside each rank.
package orchestrate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
	"github.com/gatehouse-dev/gatehouse/internal/metrics"
	"github.com/gatehouse-dev/gatehouse/internal/platform/hcloud"
	"github.com/gatehouse-dev/gatehouse/internal/policy"
	"github.com/gatehouse-dev/gatehouse/internal/reconcile"
	"github.com/gatehouse-dev/gatehouse/internal/state"
	"github.com/gatehouse-dev/gatehouse/internal/topology"
	"github.com/gatehouse-dev/gatehouse/internal/util/naming"
)

// ImageResolver turns an image reference into a provider ID.
type ImageResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Config wires an Orchestrator.
type Config struct {
	Provider hcloud.Provider
	Store    state.Store
	Images   ImageResolver
	Log      logr.Logger

	// LockTTL is the lease on the cluster lock; it is refreshed
	// between ranks so a crashed run expires instead of wedging.
	LockTTL time.Duration
	// LockWait bounds how long acquisition blocks on a held lock
	// before failing as retryable.
	LockWait time.Duration
}

// Orchestrator serializes all mutating cluster operations.
type Orchestrator struct {
	provider hcloud.Provider
	store    state.Store
	images   ImageResolver
	log      logr.Logger

	lockTTL  time.Duration
	lockWait time.Duration

	sleep func(context.Context, time.Duration) error
}

// New builds an Orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		provider: cfg.Provider,
		store:    cfg.Store,
		images:   cfg.Images,
		log:      cfg.Log,
		lockTTL:  cfg.LockTTL,
		lockWait: cfg.LockWait,
		sleep:    sleepCtx,
	}
	if o.lockTTL == 0 {
		o.lockTTL = 5 * time.Minute
	}
	if o.lockWait == 0 {
		o.lockWait = 30 * time.Second
	}
	return o
}

// Report is what an operation tells the caller: every action that
// succeeded, every one that failed, and the remainder never attempted.
type Report struct {
	Succeeded []string
	Failed    []string
	Skipped   []string
	Warnings  []error
}

// PlanOnly validates the desired topology and returns the plan that
// apply would execute, without mutating anything.
func (o *Orchestrator) PlanOnly(ctx context.Context, desired *topology.Topology) (*reconcile.Plan, error) {
	if err := o.validate(desired); err != nil {
		return nil, err
	}
	observed, err := o.loadState(ctx)
	if err != nil {
		return nil, err
	}
	return reconcile.Diff(desired, observed), nil
}

// Apply reconciles the cluster to the desired topology. On a rank
// failure it halts, persists partial progress, and reports the
// remainder so a retry resumes from the right point.
func (o *Orchestrator) Apply(ctx context.Context, desired *topology.Topology) (*Report, error) {
	start := time.Now()
	report, err := o.apply(ctx, desired)
	result := "success"
	if err != nil {
		result = "failure"
	}
	if desired != nil {
		metrics.RecordApply(desired.ClusterName, result, time.Since(start))
	}
	return report, err
}

func (o *Orchestrator) apply(ctx context.Context, desired *topology.Topology) (*Report, error) {
	// Validation runs before any mutation, lock acquisition included.
	if err := o.validate(desired); err != nil {
		return nil, err
	}

	lock, err := o.acquireLock(ctx, desired.ClusterName, "apply")
	if err != nil {
		return nil, err
	}
	defer o.release(ctx, lock)

	observed, err := o.loadState(ctx)
	if err != nil {
		return nil, err
	}

	plan := reconcile.Diff(desired, observed)
	metrics.RecordPlanActions(desired.ClusterName, plan.Counts())
	if plan.Empty() {
		o.log.Info("cluster already converged", "cluster", desired.ClusterName)
		return &Report{}, nil
	}

	exec := newExecutor(o.provider, o.images, desired, observed, o.log)
	report, execErr := o.executeRanks(ctx, lock, observed, exec, plan.Ranks(false))

	if execErr == nil {
		observed.Topology = desired
		if err := o.store.Save(ctx, observed); err != nil {
			return report, fmt.Errorf("failed to persist final state: %w", err)
		}
	}
	return report, execErr
}

// executeRanks runs the plan rank by rank, parallel within a rank,
// persisting state and refreshing the lock between ranks. The first
// rank with failures halts execution in that direction.
func (o *Orchestrator) executeRanks(ctx context.Context, lock state.Lock, st *state.ClusterState, exec *executor, ranks [][]reconcile.Action) (*Report, error) {
	report := &Report{}
	var execErr error

	for i, actions := range ranks {
		if execErr != nil || ctx.Err() != nil {
			for _, a := range actions {
				report.Skipped = append(report.Skipped, a.String())
			}
			continue
		}
		if i > 0 {
			if err := lock.Refresh(ctx); err != nil {
				execErr = err
				for _, a := range actions {
					report.Skipped = append(report.Skipped, a.String())
				}
				continue
			}
		}

		rankErr := exec.runRank(ctx, actions, report)
		if err := o.store.Save(ctx, st); err != nil {
			rankErr = errors.Join(rankErr, fmt.Errorf("failed to persist state: %w", err))
		}
		if rankErr != nil {
			execErr = rankErr
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil && execErr == nil {
		execErr = ctxErr
	}
	return report, execErr
}

func (o *Orchestrator) validate(desired *topology.Topology) error {
	if desired == nil {
		return errdefs.Inputf("desired topology is required")
	}
	if err := desired.Validate(); err != nil {
		return err
	}
	return policy.Validate(desired)
}

// loadState treats a missing state object as an empty cluster.
func (o *Orchestrator) loadState(ctx context.Context) (*state.ClusterState, error) {
	st, err := o.store.Load(ctx)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return state.New(), nil
		}
		return nil, errdefs.Observation(err)
	}
	return st, nil
}

// acquireLock blocks with backoff until the lock is free or the wait
// budget is spent, then fails retryable.
func (o *Orchestrator) acquireLock(ctx context.Context, cluster, operation string) (state.Lock, error) {
	holder := naming.LockHolder(operation, newRunID())
	deadline := time.Now().Add(o.lockWait)
	delay := time.Second

	for {
		lock, err := o.store.AcquireLock(ctx, holder, o.lockTTL)
		if err == nil {
			return lock, nil
		}
		if !errdefs.IsLockContention(err) {
			return nil, err
		}
		metrics.RecordLockContention(cluster)
		if time.Now().Add(delay).After(deadline) {
			return nil, err
		}
		o.log.Info("cluster lock held, waiting", "holder", holder)
		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}
		if delay < 8*time.Second {
			delay *= 2
		}
	}
}

func (o *Orchestrator) release(ctx context.Context, lock state.Lock) {
	if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
		o.log.Error(err, "failed to release cluster lock")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func newRunID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
