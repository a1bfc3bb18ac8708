// Package policy enforces the single-entry-point invariant of the
// access gateway: the gateway is the only group reachable from
// outside the cluster network, and every path into the cluster runs
// through it.
package policy

import (
	"net"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
	"github.com/gatehouse-dev/gatehouse/internal/platform/hcloud"
	"github.com/gatehouse-dev/gatehouse/internal/topology"
)

// Validate rejects any policy that would expose a non-gateway group
// to external ingress. Violations are reported, never rewritten.
func Validate(topo *topology.Topology) error {
	for _, rule := range topo.Policy.Rules {
		dest := topo.Group(rule.Destination)
		if dest == nil {
			return errdefs.Inputf("rule %q: unknown destination group %q", rule.Name, rule.Destination)
		}

		external, err := isExternalSource(topo, rule.Source)
		if err != nil {
			return errdefs.Input(err)
		}
		if external && dest.Role != topology.RoleGateway {
			return &errdefs.PolicyViolation{
				Rule:   rule.Name,
				Reason: "external sources may only reach the gateway",
			}
		}

		// Inter-group traffic must stay inside the private partition
		// unless it originates at the gateway.
		if !external && rule.Source != string(topology.RoleGateway) && dest.Role != topology.RoleGateway {
			if dest.Placement != topology.PlacementPrivate {
				return &errdefs.PolicyViolation{
					Rule:   rule.Name,
					Reason: "inter-group destination must live in the private partition",
				}
			}
		}
	}
	return nil
}

// isExternalSource reports whether a rule source lies outside the
// cluster network. Group names are internal; CIDRs are checked for
// containment in the network range.
func isExternalSource(topo *topology.Topology, source string) (bool, error) {
	if source == hcloud.SourceExternal {
		return true, nil
	}
	if topo.Group(topology.Role(source)) != nil {
		return false, nil
	}

	if _, _, err := net.ParseCIDR(source); err != nil {
		return false, errdefs.Inputf("source %q is neither a group nor a CIDR", source)
	}
	contains, err := topology.CIDRContains(topo.Network.CIDR, source)
	if err != nil {
		return false, err
	}
	return !contains, nil
}
