package hcloud

import (
	"fmt"
	"net"
	"sort"
	"strings"

	hcloudlib "github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
	"github.com/gatehouse-dev/gatehouse/internal/topology"
)

// SourceExternal in a policy rule means "anywhere outside the cluster
// network". It is only ever legal with the gateway as destination;
// the policy validator enforces that before a plan is built.
const SourceExternal = "external"

var anyIPv4 = net.IPNet{IP: net.IPv4zero.To4(), Mask: net.CIDRMask(0, 32)}

// BuildRules translates the topology's allow-list into provider
// firewall rules. Role sources resolve to that role's subnet, so the
// rendered rules track subnet derivation instead of hardcoding ranges.
func BuildRules(topo *topology.Topology) ([]hcloudlib.FirewallRule, error) {
	rules := make([]hcloudlib.FirewallRule, 0, len(topo.Policy.Rules))
	for _, rule := range topo.Policy.Rules {
		sources, err := resolveSources(topo, rule.Source)
		if err != nil {
			return nil, errdefs.Input(fmt.Errorf("rule %q: %w", rule.Name, err))
		}
		port := rule.Port
		if strings.Contains(port, ":") {
			return nil, errdefs.Inputf("rule %q: port ranges use a dash, got %q", rule.Name, port)
		}
		rules = append(rules, hcloudlib.FirewallRule{
			Direction:   hcloudlib.FirewallRuleDirectionIn,
			Protocol:    hcloudlib.FirewallRuleProtocolTCP,
			Port:        hcloudlib.Ptr(port),
			SourceIPs:   sources,
			Description: hcloudlib.Ptr(rule.Name),
		})
	}
	return rules, nil
}

// firewallApplyTo selects cluster members by their labels. Binding by
// selector instead of server ID means membership tracks the label, not
// a point-in-time server list.
func firewallApplyTo(labels map[string]string) []hcloudlib.FirewallResource {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}

	return []hcloudlib.FirewallResource{{
		Type: hcloudlib.FirewallResourceTypeLabelSelector,
		LabelSelector: &hcloudlib.FirewallResourceLabelSelector{
			Selector: strings.Join(parts, ","),
		},
	}}
}

func resolveSources(topo *topology.Topology, source string) ([]net.IPNet, error) {
	if source == SourceExternal {
		return []net.IPNet{anyIPv4}, nil
	}

	if group := topo.Group(topology.Role(source)); group != nil {
		subnet, err := topo.SubnetFor(group.Role)
		if err != nil {
			return nil, err
		}
		_, ipNet, err := net.ParseCIDR(subnet)
		if err != nil {
			return nil, fmt.Errorf("subnet for %s: %w", source, err)
		}
		return []net.IPNet{*ipNet}, nil
	}

	_, ipNet, err := net.ParseCIDR(source)
	if err != nil {
		return nil, fmt.Errorf("source %q is neither a group nor a CIDR", source)
	}
	return []net.IPNet{*ipNet}, nil
}
