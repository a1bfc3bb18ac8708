// Package hcloud adapts the Hetzner Cloud API to the narrow surface
// the reconciler and fleet controller need. All resource references
// cross the boundary as opaque string IDs.
package hcloud

import (
	"context"
	"net"

	hcloudlib "github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// ServerSpec describes one server to create.
type ServerSpec struct {
	Name       string
	ServerType string
	// ImageID is the resolved provider image ID, not the image name.
	ImageID  string
	Location string
	// NetworkID and PrivateIP attach the server to the cluster network
	// at a deterministic address.
	NetworkID string
	PrivateIP net.IP
	// PublicIPv4 is set only for the gateway. Every other server is
	// reachable solely over the private network.
	PublicIPv4 bool
	Labels     map[string]string
	UserData   string
}

// ServerInfo is the observed state of a server.
type ServerInfo struct {
	ID        string
	Running   bool
	PublicIP  string
	PrivateIP string
}

// Provider is the cloud surface the controller provisions against.
// Implementations must be idempotent: ensuring an existing resource
// succeeds, deleting an absent one is a no-op.
type Provider interface {
	EnsureNetwork(ctx context.Context, name, ipRange string, labels map[string]string) (string, error)
	EnsureSubnet(ctx context.Context, networkID, ipRange, zone string) error
	DeleteNetwork(ctx context.Context, name string) error

	EnsureFirewall(ctx context.Context, name string, rules []hcloudlib.FirewallRule, labels map[string]string) (string, error)
	DeleteFirewall(ctx context.Context, name string) error

	CreateServer(ctx context.Context, spec ServerSpec) (string, error)
	DeleteServer(ctx context.Context, name string) error
	// ServerStatus returns nil when the server does not exist.
	ServerStatus(ctx context.Context, name string) (*ServerInfo, error)
}
