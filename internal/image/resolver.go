// Package image resolves logical image references from the topology
// into provider image IDs. Nodes boot from pre-built snapshots; the
// controller never builds images inline during an apply.
package image

import (
	"context"
	"strconv"
	"sync"

	hcloudlib "github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
)

// api is the image lookup slice of the provider client.
type api interface {
	Get(ctx context.Context, nameOrID string) (*hcloudlib.Image, *hcloudlib.Response, error)
	List(ctx context.Context, opts hcloudlib.ImageListOpts) ([]*hcloudlib.Image, *hcloudlib.Response, error)
}

// Resolver maps image names to provider IDs, caching results for the
// duration of one apply so every node of a group resolves identically.
type Resolver struct {
	images api

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver builds a Resolver over a provider client.
func NewResolver(client *hcloudlib.Client) *Resolver {
	return &Resolver{images: &client.Image, cache: make(map[string]string)}
}

func newResolverWithAPI(images api) *Resolver {
	return &Resolver{images: images, cache: make(map[string]string)}
}

// Resolve returns the provider ID for an image reference. A numeric
// reference is already an ID and passes through. An unknown reference
// is an input error: the snapshot must exist before apply.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if _, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return ref, nil
	}

	r.mu.Lock()
	if id, ok := r.cache[ref]; ok {
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	img, _, err := r.images.Get(ctx, ref)
	if err != nil {
		return "", errdefs.Observation(err)
	}
	if img == nil {
		// Snapshots are matched by description, not name.
		snapshots, _, err := r.images.List(ctx, hcloudlib.ImageListOpts{
			Type: []hcloudlib.ImageType{hcloudlib.ImageTypeSnapshot},
		})
		if err != nil {
			return "", errdefs.Observation(err)
		}
		for _, s := range snapshots {
			if s.Description == ref {
				img = s
				break
			}
		}
	}
	if img == nil {
		return "", errdefs.Inputf("image %q not found, build the snapshot before applying", ref)
	}

	id := strconv.FormatInt(img.ID, 10)
	r.mu.Lock()
	r.cache[ref] = id
	r.mu.Unlock()
	return id, nil
}
