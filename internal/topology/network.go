package topology

import "fmt"

// Partition derivation inside the overall network range:
// public = cidrsubnet(cidr, 8, 0), private = cidrsubnet(cidr, 1, 1).
// For the default 10.0.0.0/16 that yields 10.0.0.0/24 public and
// 10.0.128.0/17 private, disjoint by construction.
const (
	defaultNetworkCIDR = "10.0.0.0/16"
	defaultNetworkZone = "eu-central"

	publicNewBits  = 8
	publicNetNum   = 0
	privateNewBits = 1
	privateNetNum  = 1

	// Per-role subnet index inside the private partition.
	privateSubnetBits    = 3
	subnetIdxControl     = 0
	subnetIdxWorker      = 1
	subnetIdxMonitoring  = 2
	monitoringPairSize   = 2
	defaultControlPlanes = 3
)

// ApplyDefaults fills derived and defaulted fields: partition CIDRs,
// group roles and placements, and group counts where the shape is
// fixed (one gateway, a control-plane quorum, a monitoring pair).
func (t *Topology) ApplyDefaults() error {
	if t.Network.CIDR == "" {
		t.Network.CIDR = defaultNetworkCIDR
	}

	if t.Network.PublicCIDR == "" {
		subnet, err := CIDRSubnet(t.Network.CIDR, publicNewBits, publicNetNum)
		if err != nil {
			return fmt.Errorf("deriving public partition: %w", err)
		}
		t.Network.PublicCIDR = subnet
	}

	if t.Network.PrivateCIDR == "" {
		subnet, err := CIDRSubnet(t.Network.CIDR, privateNewBits, privateNetNum)
		if err != nil {
			return fmt.Errorf("deriving private partition: %w", err)
		}
		t.Network.PrivateCIDR = subnet
	}
	if t.Network.Zone == "" {
		t.Network.Zone = defaultNetworkZone
	}

	t.Gateway.Role = RoleGateway
	t.ControlPlane.Role = RoleControlPlane
	t.Workers.Role = RoleWorker
	t.Monitoring.Role = RoleMonitoring

	if t.Gateway.Count == 0 {
		t.Gateway.Count = 1
	}
	if t.Gateway.Placement == "" {
		t.Gateway.Placement = PlacementPublic
	}

	if t.ControlPlane.Count == 0 {
		t.ControlPlane.Count = defaultControlPlanes
	}
	if t.Monitoring.Count == 0 {
		t.Monitoring.Count = monitoringPairSize
	}
	for _, g := range []*NodeGroup{&t.ControlPlane, &t.Workers, &t.Monitoring} {
		if g.Placement == "" {
			g.Placement = PlacementPrivate
		}
	}

	if t.Metrics.Service == "" {
		t.Metrics.Service = "metrics"
	}
	if t.Metrics.Port == 0 {
		t.Metrics.Port = 9090
	}

	return nil
}

// SubnetFor returns the subnet a role's nodes are addressed from.
// The gateway owns the public partition; the private partition is
// carved into per-role subnets.
func (t *Topology) SubnetFor(role Role) (string, error) {
	if role == RoleGateway {
		return t.Network.PublicCIDR, nil
	}

	var idx int
	switch role {
	case RoleControlPlane:
		idx = subnetIdxControl
	case RoleWorker:
		idx = subnetIdxWorker
	case RoleMonitoring:
		idx = subnetIdxMonitoring
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}

	return CIDRSubnet(t.Network.PrivateCIDR, privateSubnetBits, idx)
}

// NodeIP returns the private address of the idx-th node (1-based) of
// a role. Addresses are deterministic so reconciliation can match
// desired nodes to provisioned resources.
func (t *Topology) NodeIP(role Role, idx int) (string, error) {
	subnet, err := t.SubnetFor(role)
	if err != nil {
		return "", err
	}
	return CIDRHost(subnet, idx)
}
