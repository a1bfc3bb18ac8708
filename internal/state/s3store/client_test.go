package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
	"github.com/gatehouse-dev/gatehouse/internal/state"
)

// fakeBucket implements the api interface with conditional-write
// semantics matching S3.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	etags   map[string]string
	seq     int
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte), etags: make(map[string]string)}
}

func (f *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	etag := f.etags[*in.Key]
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
		ETag: aws.String(etag),
	}, nil
}

func (f *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, exists := f.objects[*in.Key]
	if in.IfNoneMatch != nil && exists {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed"}
	}
	if in.IfMatch != nil && (!exists || f.etags[*in.Key] != *in.IfMatch) {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed"}
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.seq++
	etag := fmt.Sprintf("etag-%d", f.seq)
	f.objects[*in.Key] = data
	f.etags[*in.Key] = etag
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func (f *fakeBucket) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	delete(f.etags, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func newTestStore(bucket *fakeBucket) *Store {
	return &Store{api: bucket, bucket: "gatehouse-state", cluster: "prod", now: time.Now}
}

func TestLoadNotFound(t *testing.T) {
	store := newTestStore(newFakeBucket())
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(newFakeBucket())

	st := state.New()
	st.Resources["prod-net"] = state.Resource{ID: "77", Kind: state.KindNetwork}
	require.NoError(t, store.Save(ctx, st))
	assert.Equal(t, int64(1), st.Revision)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "77", loaded.Resources["prod-net"].ID)
}

func TestSaveDetectsConcurrentWriter(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()

	a := newTestStore(bucket)
	b := newTestStore(bucket)

	require.NoError(t, a.Save(ctx, state.New()))
	_, err := a.Load(ctx)
	require.NoError(t, err)
	_, err = b.Load(ctx)
	require.NoError(t, err)

	stA, _ := a.Load(ctx)
	require.NoError(t, a.Save(ctx, stA))

	stB := state.New()
	stB.Revision = 1
	err = b.Save(ctx, stB)
	assert.ErrorIs(t, err, state.ErrRevisionConflict)
}

func TestFirstSaveRequiresAbsence(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()

	a := newTestStore(bucket)
	b := newTestStore(bucket)

	require.NoError(t, a.Save(ctx, state.New()))
	// b never loaded, so its first save must not clobber a's write.
	err := b.Save(ctx, state.New())
	assert.ErrorIs(t, err, state.ErrRevisionConflict)
}

func TestLockExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	store := newTestStore(bucket)

	lock, err := store.AcquireLock(ctx, "apply/run-1", time.Minute)
	require.NoError(t, err)

	_, err = store.AcquireLock(ctx, "destroy/run-2", time.Minute)
	require.Error(t, err)
	assert.True(t, errdefs.IsLockContention(err))

	require.NoError(t, lock.Release(ctx))
	_, err = store.AcquireLock(ctx, "destroy/run-2", time.Minute)
	assert.NoError(t, err)
}

func TestStaleLockTakenOver(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()

	store := newTestStore(bucket)
	current := time.Now()
	store.now = func() time.Time { return current }

	_, err := store.AcquireLock(ctx, "apply/crashed", time.Minute)
	require.NoError(t, err)

	current = current.Add(5 * time.Minute)
	lock, err := store.AcquireLock(ctx, "apply/recovery", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lock.Refresh(ctx))
}

func TestReleaseAfterTakeoverIsNoop(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()

	store := newTestStore(bucket)
	current := time.Now()
	store.now = func() time.Time { return current }

	stale, err := store.AcquireLock(ctx, "apply/stale", time.Minute)
	require.NoError(t, err)

	current = current.Add(5 * time.Minute)
	fresh, err := store.AcquireLock(ctx, "apply/fresh", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	// The fresh holder's lock must survive the stale release.
	require.NoError(t, fresh.Refresh(ctx))
}
