package policy

import (
	"fmt"
	"hash/fnv"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
	"github.com/gatehouse-dev/gatehouse/internal/topology"
	"github.com/gatehouse-dev/gatehouse/internal/util/naming"
)

// Local port window on the gateway reserved for tunnel forwards.
const (
	tunnelPortBase = 10000
	tunnelPortSpan = 20000
)

// TunnelRoute is the forwarding path the access tooling consults:
// external traffic enters at the gateway's local port and is forwarded
// to the service port inside the private partition.
type TunnelRoute struct {
	GatewayNode string
	LocalPort   int
	Service     string
	ServicePort int
}

// String renders the path in hop order.
func (r TunnelRoute) String() string {
	return fmt.Sprintf("external -> %s:%d -> %s:%d", r.GatewayNode, r.LocalPort, r.Service, r.ServicePort)
}

// ComputeTunnelRoute returns the route for an internal service. It is
// a pure function of the topology: the same service and port always
// map to the same gateway local port, so forwards survive controller
// restarts without coordination.
func ComputeTunnelRoute(topo *topology.Topology, service string, port int) (TunnelRoute, error) {
	if service == "" {
		return TunnelRoute{}, errdefs.Inputf("tunnel route needs a service name")
	}
	if port < 1 || port > 65535 {
		return TunnelRoute{}, errdefs.Inputf("tunnel route port %d out of range", port)
	}

	return TunnelRoute{
		GatewayNode: gatewayNodeID(topo),
		LocalPort:   localPort(service, port),
		Service:     service,
		ServicePort: port,
	}, nil
}

// MetricsRoute is the route that keeps the controller's scrape
// endpoint reachable regardless of fleet churn.
func MetricsRoute(topo *topology.Topology) (TunnelRoute, error) {
	return ComputeTunnelRoute(topo, topo.Metrics.Service, topo.Metrics.Port)
}

func gatewayNodeID(topo *topology.Topology) string {
	// The gateway group has exactly one node.
	return naming.Node(topo.ClusterName, string(topology.RoleGateway), 1)
}

func localPort(service string, port int) int {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s:%d", service, port)
	return tunnelPortBase + int(h.Sum32()%tunnelPortSpan)
}
