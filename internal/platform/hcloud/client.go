package hcloud

import (
	"context"
	"fmt"
	"net"
	"strconv"

	hcloudlib "github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
	"github.com/gatehouse-dev/gatehouse/internal/util/retry"
)

// Client implements Provider against the real Hetzner Cloud API.
// Transient API errors are retried with exponential backoff.
type Client struct {
	client *hcloudlib.Client
}

// NewClient builds a Client from an API token.
func NewClient(token string) *Client {
	return &Client{
		client: hcloudlib.NewClient(hcloudlib.WithToken(token)),
	}
}

var _ Provider = (*Client)(nil)

func (c *Client) withRetry(ctx context.Context, op func() error) error {
	return retry.WithExponentialBackoff(ctx, op,
		retry.WithMaxRetries(4),
		retry.WithRetryIf(isRetryableAPIError),
	)
}

// EnsureNetwork implements Provider. An existing network with a
// different IP range is an error, not something to mutate in place.
func (c *Client) EnsureNetwork(ctx context.Context, name, ipRange string, labels map[string]string) (string, error) {
	network, _, err := c.client.Network.Get(ctx, name)
	if err != nil {
		return "", errdefs.Observation(fmt.Errorf("failed to get network %s: %w", name, err))
	}

	if network != nil {
		if network.IPRange.String() != ipRange {
			return "", errdefs.Inputf("network %s exists with range %s, want %s", name, network.IPRange, ipRange)
		}
		return strconv.FormatInt(network.ID, 10), nil
	}

	_, ipNet, err := net.ParseCIDR(ipRange)
	if err != nil {
		return "", errdefs.Inputf("invalid network range %s: %v", ipRange, err)
	}

	err = c.withRetry(ctx, func() error {
		network, _, err = c.client.Network.Create(ctx, hcloudlib.NetworkCreateOpts{
			Name:    name,
			IPRange: ipNet,
			Labels:  labels,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to create network %s: %w", name, err)
	}
	return strconv.FormatInt(network.ID, 10), nil
}

// EnsureSubnet implements Provider.
func (c *Client) EnsureSubnet(ctx context.Context, networkID, ipRange, zone string) error {
	id, err := strconv.ParseInt(networkID, 10, 64)
	if err != nil {
		return errdefs.Inputf("invalid network id %q", networkID)
	}

	network, _, err := c.client.Network.GetByID(ctx, id)
	if err != nil {
		return errdefs.Observation(fmt.Errorf("failed to get network %s: %w", networkID, err))
	}
	if network == nil {
		return errdefs.Observation(fmt.Errorf("network %s not found", networkID))
	}

	for _, subnet := range network.Subnets {
		if subnet.IPRange != nil && subnet.IPRange.String() == ipRange {
			return nil
		}
	}

	_, ipNet, err := net.ParseCIDR(ipRange)
	if err != nil {
		return errdefs.Inputf("invalid subnet range %s: %v", ipRange, err)
	}

	return c.withRetry(ctx, func() error {
		action, _, err := c.client.Network.AddSubnet(ctx, network, hcloudlib.NetworkAddSubnetOpts{
			Subnet: hcloudlib.NetworkSubnet{
				Type:        hcloudlib.NetworkSubnetTypeCloud,
				IPRange:     ipNet,
				NetworkZone: hcloudlib.NetworkZone(zone),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to add subnet %s: %w", ipRange, err)
		}
		return c.client.Action.WaitFor(ctx, action)
	})
}

// DeleteNetwork implements Provider.
func (c *Client) DeleteNetwork(ctx context.Context, name string) error {
	network, _, err := c.client.Network.Get(ctx, name)
	if err != nil {
		return errdefs.Observation(fmt.Errorf("failed to get network %s: %w", name, err))
	}
	if network == nil {
		return nil
	}
	return c.withRetry(ctx, func() error {
		_, err := c.client.Network.Delete(ctx, network)
		if err != nil && isNotFound(err) {
			return nil
		}
		return err
	})
}

// EnsureFirewall implements Provider. For an existing firewall the
// rules are overwritten with the desired set. The firewall is bound to
// cluster members by label selector, so servers created later in the
// run are covered as soon as they carry the cluster label.
func (c *Client) EnsureFirewall(ctx context.Context, name string, rules []hcloudlib.FirewallRule, labels map[string]string) (string, error) {
	fw, _, err := c.client.Firewall.Get(ctx, name)
	if err != nil {
		return "", errdefs.Observation(fmt.Errorf("failed to get firewall %s: %w", name, err))
	}

	applyTo := firewallApplyTo(labels)

	if fw != nil {
		err = c.withRetry(ctx, func() error {
			actions, _, err := c.client.Firewall.SetRules(ctx, fw, hcloudlib.FirewallSetRulesOpts{Rules: rules})
			if err != nil {
				return fmt.Errorf("failed to set firewall rules: %w", err)
			}
			return c.client.Action.WaitFor(ctx, actions...)
		})
		if err != nil {
			return "", err
		}
		// A firewall that lost its resource binding blocks nothing.
		if len(fw.AppliedTo) == 0 {
			err = c.withRetry(ctx, func() error {
				actions, _, err := c.client.Firewall.ApplyResources(ctx, fw, applyTo)
				if err != nil {
					return fmt.Errorf("failed to apply firewall %s to cluster resources: %w", name, err)
				}
				return c.client.Action.WaitFor(ctx, actions...)
			})
			if err != nil {
				return "", err
			}
		}
		return strconv.FormatInt(fw.ID, 10), nil
	}

	var created *hcloudlib.Firewall
	err = c.withRetry(ctx, func() error {
		res, _, err := c.client.Firewall.Create(ctx, hcloudlib.FirewallCreateOpts{
			Name:    name,
			Rules:   rules,
			Labels:  labels,
			ApplyTo: applyTo,
		})
		if err != nil {
			return fmt.Errorf("failed to create firewall %s: %w", name, err)
		}
		created = res.Firewall
		return c.client.Action.WaitFor(ctx, res.Actions...)
	})
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(created.ID, 10), nil
}

// DeleteFirewall implements Provider.
func (c *Client) DeleteFirewall(ctx context.Context, name string) error {
	fw, _, err := c.client.Firewall.Get(ctx, name)
	if err != nil {
		return errdefs.Observation(fmt.Errorf("failed to get firewall %s: %w", name, err))
	}
	if fw == nil {
		return nil
	}
	return c.withRetry(ctx, func() error {
		_, err := c.client.Firewall.Delete(ctx, fw)
		if err != nil && isNotFound(err) {
			return nil
		}
		return err
	})
}

// CreateServer implements Provider. The image must already be
// resolved to a provider ID.
func (c *Client) CreateServer(ctx context.Context, spec ServerSpec) (string, error) {
	serverType, _, err := c.client.ServerType.Get(ctx, spec.ServerType)
	if err != nil {
		return "", errdefs.Observation(fmt.Errorf("failed to get server type %s: %w", spec.ServerType, err))
	}
	if serverType == nil {
		return "", errdefs.Inputf("server type not found: %s", spec.ServerType)
	}

	imageID, err := strconv.ParseInt(spec.ImageID, 10, 64)
	if err != nil {
		return "", errdefs.Inputf("invalid image id %q", spec.ImageID)
	}

	location, _, err := c.client.Location.Get(ctx, spec.Location)
	if err != nil {
		return "", errdefs.Observation(fmt.Errorf("failed to get location %s: %w", spec.Location, err))
	}
	if location == nil {
		return "", errdefs.Inputf("location not found: %s", spec.Location)
	}

	var networkID int64
	if spec.NetworkID != "" {
		networkID, err = strconv.ParseInt(spec.NetworkID, 10, 64)
		if err != nil {
			return "", errdefs.Inputf("invalid network id %q", spec.NetworkID)
		}
	}

	opts := hcloudlib.ServerCreateOpts{
		Name:       spec.Name,
		ServerType: serverType,
		Image:      &hcloudlib.Image{ID: imageID},
		Location:   location,
		Labels:     spec.Labels,
		UserData:   spec.UserData,
		PublicNet: &hcloudlib.ServerCreatePublicNet{
			EnableIPv4: spec.PublicIPv4,
			EnableIPv6: false,
		},
	}

	var server *hcloudlib.Server
	err = c.withRetry(ctx, func() error {
		result, _, err := c.client.Server.Create(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to create server %s: %w", spec.Name, err)
		}
		server = result.Server
		actions := append([]*hcloudlib.Action{result.Action}, result.NextActions...)
		return c.client.Action.WaitFor(ctx, actions...)
	})
	if err != nil {
		return "", err
	}

	// Attachment happens after create so the server gets its assigned
	// address; create-time attachment lets the provider pick any free
	// IP in the network, off the role subnet.
	if networkID != 0 {
		if err := c.attachToNetwork(ctx, server, networkID, spec.PrivateIP); err != nil {
			return "", err
		}
	}
	return strconv.FormatInt(server.ID, 10), nil
}

// attachToNetwork binds a new server to the cluster network at a fixed
// address. The server may still be locked right after creation, so the
// attach retries.
func (c *Client) attachToNetwork(ctx context.Context, server *hcloudlib.Server, networkID int64, ip net.IP) error {
	opts := hcloudlib.ServerAttachToNetworkOpts{
		Network: &hcloudlib.Network{ID: networkID},
		IP:      ip,
	}
	return c.withRetry(ctx, func() error {
		action, _, err := c.client.Server.AttachToNetwork(ctx, server, opts)
		if err != nil {
			return fmt.Errorf("failed to attach server %s to network: %w", server.Name, err)
		}
		return c.client.Action.WaitFor(ctx, action)
	})
}

// DeleteServer implements Provider. Deleting an absent server is a
// no-op so teardown can be re-run.
func (c *Client) DeleteServer(ctx context.Context, name string) error {
	server, _, err := c.client.Server.Get(ctx, name)
	if err != nil {
		return errdefs.Observation(fmt.Errorf("failed to get server %s: %w", name, err))
	}
	if server == nil {
		return nil
	}
	return c.withRetry(ctx, func() error {
		result, _, err := c.client.Server.DeleteWithResult(ctx, server)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to delete server %s: %w", name, err)
		}
		return c.client.Action.WaitFor(ctx, result.Action)
	})
}

// ServerStatus implements Provider.
func (c *Client) ServerStatus(ctx context.Context, name string) (*ServerInfo, error) {
	server, _, err := c.client.Server.Get(ctx, name)
	if err != nil {
		return nil, errdefs.Observation(fmt.Errorf("failed to get server %s: %w", name, err))
	}
	if server == nil {
		return nil, nil
	}

	info := &ServerInfo{
		ID:      strconv.FormatInt(server.ID, 10),
		Running: server.Status == hcloudlib.ServerStatusRunning,
	}
	if server.PublicNet.IPv4.IP != nil {
		info.PublicIP = server.PublicNet.IPv4.IP.String()
	}
	if len(server.PrivateNet) > 0 && server.PrivateNet[0].IP != nil {
		info.PrivateIP = server.PrivateNet[0].IP.String()
	}
	return info, nil
}
