package state

import (
	"context"
	"sync"
	"time"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
)

// MemoryStore is an in-process Store used by tests and dry runs. It
// implements the same compare-and-swap and locking semantics as the
// remote store.
type MemoryStore struct {
	mu    sync.Mutex
	state *ClusterState

	lockHolder string
	lockExpiry time.Time

	now func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context) (*ClusterState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, ErrNotFound
	}
	return m.state.Clone(), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, st *ClusterState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != nil && m.state.Revision != st.Revision {
		return ErrRevisionConflict
	}
	st.Revision++
	st.UpdatedAt = m.now()
	m.state = st.Clone()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = nil
	return nil
}

// AcquireLock implements Store. Expired locks are taken over.
func (m *MemoryStore) AcquireLock(_ context.Context, holder string, ttl time.Duration) (Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lockHolder != "" && now.Before(m.lockExpiry) {
		return nil, &errdefs.LockContention{Holder: m.lockHolder}
	}

	m.lockHolder = holder
	m.lockExpiry = now.Add(ttl)
	return &memoryLock{store: m, holder: holder, ttl: ttl}, nil
}

type memoryLock struct {
	store  *MemoryStore
	holder string
	ttl    time.Duration
}

func (l *memoryLock) Refresh(_ context.Context) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if l.store.lockHolder != l.holder {
		return &errdefs.LockContention{Holder: l.store.lockHolder}
	}
	l.store.lockExpiry = l.store.now().Add(l.ttl)
	return nil
}

func (l *memoryLock) Release(_ context.Context) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if l.store.lockHolder == l.holder {
		l.store.lockHolder = ""
	}
	return nil
}
