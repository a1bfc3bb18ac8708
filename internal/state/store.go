package state

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when no state has been written yet
// (first apply) or after a full teardown.
var ErrNotFound = errors.New("cluster state not found")

// ErrRevisionConflict is returned by Save when the stored revision no
// longer matches the revision the caller loaded.
var ErrRevisionConflict = errors.New("cluster state revision conflict")

// Lock is a held cluster lock. The orchestrator refreshes it between
// reconciliation ranks; losing the lock aborts before the next rank.
type Lock interface {
	// Refresh extends the lock's TTL. Fails if the lock was lost.
	Refresh(ctx context.Context) error
	// Release gives the lock up. Safe to call after expiry.
	Release(ctx context.Context) error
}

// Store is the controller's only durable dependency: a lockable
// record of the last-applied cluster state.
type Store interface {
	// Load returns a copy of the stored state, or ErrNotFound.
	Load(ctx context.Context) (*ClusterState, error)

	// Save persists st with compare-and-swap semantics on Revision:
	// it succeeds only if the stored revision equals st.Revision, and
	// increments the revision on success (reflected in st).
	Save(ctx context.Context, st *ClusterState) error

	// Delete removes the stored state after a full teardown.
	Delete(ctx context.Context) error

	// AcquireLock attempts to take the cluster lock once. A held lock
	// yields errdefs.LockContention; callers implement bounded waiting.
	AcquireLock(ctx context.Context, holder string, ttl time.Duration) (Lock, error)
}
