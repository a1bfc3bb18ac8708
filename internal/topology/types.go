// Package topology defines the desired cluster shape.
//
// A Topology is the declarative intent an external trigger submits:
// network ranges, node groups, and the security policy. The controller
// never mutates a Topology after validation; everything downstream
// (reconciler, fleet controller, gateway policy) reads it.
package topology

// Role identifies a node group's function in the cluster.
type Role string

const (
	// RoleGateway is the sole group reachable from outside the
	// cluster's network boundary.
	RoleGateway Role = "gateway"
	// RoleControlPlane runs the orchestration control plane.
	RoleControlPlane Role = "control-plane"
	// RoleWorker is the elastic worker fleet.
	RoleWorker Role = "worker"
	// RoleMonitoring is the monitoring pair.
	RoleMonitoring Role = "monitoring"
)

// Placement selects the network partition a group's nodes live in.
type Placement string

const (
	// PlacementPublic places nodes in the externally routable partition.
	PlacementPublic Placement = "public"
	// PlacementPrivate places nodes in the internal-only partition.
	PlacementPrivate Placement = "private"
)

// Topology is the desired cluster shape.
type Topology struct {
	ClusterName string `yaml:"cluster_name"`
	Location    string `yaml:"location"`

	Network Network `yaml:"network"`

	Gateway      NodeGroup `yaml:"gateway"`
	ControlPlane NodeGroup `yaml:"control_plane"`
	Workers      NodeGroup `yaml:"workers"`
	Monitoring   NodeGroup `yaml:"monitoring"`

	Policy Policy `yaml:"policy"`

	// Metrics is the local scrape endpoint kept reachable through the
	// gateway independent of fleet churn.
	Metrics MetricsConfig `yaml:"metrics"`
}

// Network describes the isolated network and its two partitions.
// The private and public ranges are disjoint and both subsets of the
// overall range; when unset they are derived from CIDR.
type Network struct {
	CIDR        string `yaml:"cidr"`
	PublicCIDR  string `yaml:"public_cidr"`
	PrivateCIDR string `yaml:"private_cidr"`
	Zone        string `yaml:"zone"`
}

// NodeGroup describes one group of identically shaped nodes.
type NodeGroup struct {
	// Role is fixed per group and set by ApplyDefaults, not by the
	// topology file.
	Role Role `yaml:"-"`

	Count      int               `yaml:"count"`
	ServerType string            `yaml:"server_type"`
	Image      string            `yaml:"image"`
	Placement  Placement         `yaml:"placement"`
	Profile    string            `yaml:"profile"`
	Labels     map[string]string `yaml:"labels"`
}

// Policy is an ordered set of allow rules. Order matters for
// reporting; evaluation is allow-list only.
type Policy struct {
	Rules []Rule `yaml:"rules"`
}

// Rule allows traffic from a source CIDR to a destination group on a
// port or port range ("6443", "30000-32767").
type Rule struct {
	Name        string `yaml:"name"`
	Source      string `yaml:"source"`
	Destination Role   `yaml:"destination"`
	Port        string `yaml:"port"`
}

// MetricsConfig locates the controller's scrape endpoint.
type MetricsConfig struct {
	// Service is the logical service name used for the tunnel route.
	Service string `yaml:"service"`
	Port    int    `yaml:"port"`
}

// Groups returns all node groups in dependency order:
// gateway, control plane, workers, monitoring.
func (t *Topology) Groups() []*NodeGroup {
	return []*NodeGroup{&t.Gateway, &t.ControlPlane, &t.Workers, &t.Monitoring}
}

// Group returns the node group for a role, or nil for unknown roles.
func (t *Topology) Group(role Role) *NodeGroup {
	switch role {
	case RoleGateway:
		return &t.Gateway
	case RoleControlPlane:
		return &t.ControlPlane
	case RoleWorker:
		return &t.Workers
	case RoleMonitoring:
		return &t.Monitoring
	}
	return nil
}
