package image

import (
	"context"
	"testing"

	hcloudlib "github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
)

type fakeImageAPI struct {
	byName    map[string]int64
	snapshots map[string]int64
	getCalls  int
}

func (f *fakeImageAPI) Get(_ context.Context, nameOrID string) (*hcloudlib.Image, *hcloudlib.Response, error) {
	f.getCalls++
	if id, ok := f.byName[nameOrID]; ok {
		return &hcloudlib.Image{ID: id, Name: nameOrID}, nil, nil
	}
	return nil, nil, nil
}

func (f *fakeImageAPI) List(_ context.Context, _ hcloudlib.ImageListOpts) ([]*hcloudlib.Image, *hcloudlib.Response, error) {
	var images []*hcloudlib.Image
	for desc, id := range f.snapshots {
		images = append(images, &hcloudlib.Image{ID: id, Description: desc})
	}
	return images, nil, nil
}

func TestResolveNumericPassthrough(t *testing.T) {
	r := newResolverWithAPI(&fakeImageAPI{})
	id, err := r.Resolve(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, "123456", id)
}

func TestResolveByName(t *testing.T) {
	r := newResolverWithAPI(&fakeImageAPI{byName: map[string]int64{"debian-12": 42}})
	id, err := r.Resolve(context.Background(), "debian-12")
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestResolveSnapshotByDescription(t *testing.T) {
	r := newResolverWithAPI(&fakeImageAPI{snapshots: map[string]int64{"cluster-node-v3": 77}})
	id, err := r.Resolve(context.Background(), "cluster-node-v3")
	require.NoError(t, err)
	assert.Equal(t, "77", id)
}

func TestResolveCaches(t *testing.T) {
	api := &fakeImageAPI{byName: map[string]int64{"hardened-gw-v3": 9}}
	r := newResolverWithAPI(api)

	_, err := r.Resolve(context.Background(), "hardened-gw-v3")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "hardened-gw-v3")
	require.NoError(t, err)
	assert.Equal(t, 1, api.getCalls)
}

func TestResolveUnknownIsInputError(t *testing.T) {
	r := newResolverWithAPI(&fakeImageAPI{})
	_, err := r.Resolve(context.Background(), "no-such-image")
	require.Error(t, err)
	assert.True(t, errdefs.IsInput(err))
}
