package topology

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// SpecHash fingerprints the per-node shape of a group. Two nodes with
// equal hashes are interchangeable; a changed hash means the running
// node no longer matches intent and must be replaced.
func (g *NodeGroup) SpecHash() string {
	var b strings.Builder
	fmt.Fprintf(&b, "role=%s;type=%s;image=%s;placement=%s;profile=%s",
		g.Role, g.ServerType, g.Image, g.Placement, g.Profile)

	keys := make([]string, 0, len(g.Labels))
	for k := range g.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ";label:%s=%s", k, g.Labels[k])
	}

	return shortHash(b.String())
}

// SpecHash fingerprints the ordered rule set.
func (p *Policy) SpecHash() string {
	var b strings.Builder
	for _, r := range p.Rules {
		fmt.Fprintf(&b, "%s|%s|%s|%s;", r.Name, r.Source, r.Destination, r.Port)
	}
	return shortHash(b.String())
}

// NetworkSpecHash fingerprints the network layout.
func (t *Topology) NetworkSpecHash() string {
	return shortHash(fmt.Sprintf("%s|%s|%s|%s",
		t.Network.CIDR, t.Network.PublicCIDR, t.Network.PrivateCIDR, t.Network.Zone))
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
