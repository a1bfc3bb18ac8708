package topology

import (
	"fmt"
	"net"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
)

// Validate checks the topology's structural invariants. It returns an
// errdefs.InputError on the first violation; validation runs before
// any resource mutation.
func (t *Topology) Validate() error {
	if t.ClusterName == "" {
		return errdefs.Inputf("cluster_name is required")
	}
	if t.Location == "" {
		return errdefs.Inputf("location is required")
	}

	if err := t.validateNetwork(); err != nil {
		return err
	}
	if err := t.validateGroups(); err != nil {
		return err
	}
	return nil
}

// validateNetwork checks the partition invariants: private and public
// ranges are disjoint and both subsets of the overall range.
func (t *Topology) validateNetwork() error {
	for name, cidr := range map[string]string{
		"network.cidr":         t.Network.CIDR,
		"network.public_cidr":  t.Network.PublicCIDR,
		"network.private_cidr": t.Network.PrivateCIDR,
	} {
		if cidr == "" {
			return errdefs.Inputf("%s is required", name)
		}
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return errdefs.Input(fmt.Errorf("invalid %s: %w", name, err))
		}
	}

	for name, cidr := range map[string]string{
		"public":  t.Network.PublicCIDR,
		"private": t.Network.PrivateCIDR,
	} {
		ok, err := CIDRContains(t.Network.CIDR, cidr)
		if err != nil {
			return errdefs.Input(err)
		}
		if !ok {
			return errdefs.Inputf("%s partition %s is not inside network range %s", name, cidr, t.Network.CIDR)
		}
	}

	overlap, err := CIDRsOverlap(t.Network.PublicCIDR, t.Network.PrivateCIDR)
	if err != nil {
		return errdefs.Input(err)
	}
	if overlap {
		return errdefs.Inputf("public partition %s overlaps private partition %s",
			t.Network.PublicCIDR, t.Network.PrivateCIDR)
	}
	return nil
}

func (t *Topology) validateGroups() error {
	if t.Gateway.Count != 1 {
		return errdefs.Inputf("gateway group must have exactly one node, got %d", t.Gateway.Count)
	}
	if t.Gateway.Placement != PlacementPublic {
		return errdefs.Inputf("gateway group must be placed in the public partition")
	}

	// Only the gateway may reside in the public partition.
	for _, g := range []*NodeGroup{&t.ControlPlane, &t.Workers, &t.Monitoring} {
		if g.Placement != PlacementPrivate {
			return errdefs.Inputf("%s group must be placed in the private partition, got %q", g.Role, g.Placement)
		}
	}

	if t.ControlPlane.Count < 1 || t.ControlPlane.Count%2 == 0 {
		return errdefs.Inputf("control-plane count must be a small odd number for quorum, got %d", t.ControlPlane.Count)
	}
	if t.Workers.Count < 0 {
		return errdefs.Inputf("worker count cannot be negative, got %d", t.Workers.Count)
	}
	if t.Monitoring.Count != monitoringPairSize {
		return errdefs.Inputf("monitoring runs as a pair, got count %d", t.Monitoring.Count)
	}

	for _, g := range t.Groups() {
		if g.Role == RoleWorker && g.Count == 0 {
			continue
		}
		if g.ServerType == "" {
			return errdefs.Inputf("%s group: server_type is required", g.Role)
		}
		if g.Image == "" {
			return errdefs.Inputf("%s group: image is required", g.Role)
		}
	}
	return nil
}
