package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
	"github.com/gatehouse-dev/gatehouse/internal/state"
)

func TestTickPromotesJoiningMember(t *testing.T) {
	h := newHarness(t, 1)
	require.NoError(t, h.controller.Scale(context.Background(), 2))

	warnings, err := h.controller.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	st := h.loadState(t)
	assert.Equal(t, state.StatusHealthy, st.Resources["prod-worker-2"].Status)
}

func TestTickRemovesVanishedJoiningMember(t *testing.T) {
	h := newHarness(t, 1)
	require.NoError(t, h.controller.Scale(context.Background(), 2))
	require.NoError(t, h.provider.DeleteServer(context.Background(), "prod-worker-2"))

	_, err := h.controller.Tick(context.Background())
	require.NoError(t, err)

	st := h.loadState(t)
	_, ok := st.Resources["prod-worker-2"]
	assert.False(t, ok, "vanished joining member must be gone")
}

func TestTickMarksUnobservableMember(t *testing.T) {
	h := newHarness(t, 2)
	h.provider.SetRunning("prod-worker-1", false)

	_, err := h.controller.Tick(context.Background())
	require.NoError(t, err)

	st := h.loadState(t)
	res := st.Resources["prod-worker-1"]
	assert.Equal(t, state.StatusHealthy, res.Status)
	require.NotNil(t, res.UnhealthySince)
}

func TestTickClearsRecoveredMember(t *testing.T) {
	h := newHarness(t, 2)
	h.provider.SetRunning("prod-worker-1", false)
	_, err := h.controller.Tick(context.Background())
	require.NoError(t, err)

	h.provider.SetRunning("prod-worker-1", true)
	_, err = h.controller.Tick(context.Background())
	require.NoError(t, err)

	st := h.loadState(t)
	assert.Nil(t, st.Resources["prod-worker-1"].UnhealthySince)
}

func TestTickReplacesMemberBeyondGracePeriod(t *testing.T) {
	h := newHarness(t, 2)
	h.provider.SetRunning("prod-worker-1", false)

	_, err := h.controller.Tick(context.Background())
	require.NoError(t, err)

	h.current = h.current.Add(3 * time.Minute)
	_, err = h.controller.Tick(context.Background())
	require.NoError(t, err)

	st := h.loadState(t)
	// Replacement provisioned before the bad member drains.
	assert.Equal(t, state.StatusDraining, st.Resources["prod-worker-1"].Status)
	replacement, ok := st.Resources["prod-worker-3"]
	require.True(t, ok, "replacement member must exist")
	assert.Equal(t, state.StatusJoining, replacement.Status)
}

func TestTickCompletesDrainAtZeroAssignments(t *testing.T) {
	h := newHarness(t, 3)
	require.NoError(t, h.controller.Scale(context.Background(), 2))
	h.workloads.assignments["prod-worker-1"] = 0

	warnings, err := h.controller.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	st := h.loadState(t)
	_, ok := st.Resources["prod-worker-1"]
	assert.False(t, ok, "drained member must be gone")
	_, ok = h.provider.Servers["prod-worker-1"]
	assert.False(t, ok, "drained member must be deprovisioned")
}

func TestTickHoldsDrainWhileAssignmentsRemain(t *testing.T) {
	h := newHarness(t, 3)
	require.NoError(t, h.controller.Scale(context.Background(), 2))
	h.workloads.assignments["prod-worker-1"] = 4

	warnings, err := h.controller.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	st := h.loadState(t)
	assert.Equal(t, state.StatusDraining, st.Resources["prod-worker-1"].Status)
}

func TestTickForceDeprovisionsAfterDrainTimeout(t *testing.T) {
	h := newHarness(t, 3)
	require.NoError(t, h.controller.Scale(context.Background(), 2))
	h.workloads.assignments["prod-worker-1"] = 4

	h.current = h.current.Add(11 * time.Minute)
	warnings, err := h.controller.Tick(context.Background())
	require.NoError(t, err)

	require.Len(t, warnings, 1)
	assert.True(t, errdefs.IsDrainTimeout(warnings[0]))

	st := h.loadState(t)
	_, ok := st.Resources["prod-worker-1"]
	assert.False(t, ok)
}

func TestTickRequiresLock(t *testing.T) {
	h := newHarness(t, 1)
	_, err := h.store.AcquireLock(context.Background(), "apply/other", time.Minute)
	require.NoError(t, err)

	_, err = h.controller.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, errdefs.IsLockContention(err))
}

func TestTickObservationFailureAbortsPass(t *testing.T) {
	h := newHarness(t, 2)
	h.provider.Unreachable = errdefs.Observation(assert.AnError)

	_, err := h.controller.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, errdefs.Retryable(err))
}
