package hcloud

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	hcloudlib "github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// FakeProvider is an in-memory Provider for tests. It records every
// mutation in order and can be told to fail specific resources.
type FakeProvider struct {
	mu     sync.Mutex
	nextID int64

	Networks  map[string]*fakeNetwork
	Firewalls map[string][]hcloudlib.FirewallRule
	Servers   map[string]*ServerInfo

	// FirewallSelectors records the label selector each firewall is
	// bound to, mirroring the real client's apply-to behavior.
	FirewallSelectors map[string]string

	// Calls is the ordered mutation log, entries like
	// "create-server prod-worker-1".
	Calls []string

	// FailOn maps a resource name to the error its next mutation
	// returns. The entry is consumed by the failure.
	FailOn map[string]error

	// Unreachable makes every observation fail, simulating a provider
	// outage.
	Unreachable error
}

type fakeNetwork struct {
	id      string
	ipRange string
	subnets []string
}

// NewFakeProvider returns an empty fake.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		Networks:          make(map[string]*fakeNetwork),
		Firewalls:         make(map[string][]hcloudlib.FirewallRule),
		Servers:           make(map[string]*ServerInfo),
		FirewallSelectors: make(map[string]string),
		FailOn:            make(map[string]error),
	}
}

var _ Provider = (*FakeProvider)(nil)

func (f *FakeProvider) record(verb, name string) {
	f.Calls = append(f.Calls, verb+" "+name)
}

func (f *FakeProvider) failure(name string) error {
	if err, ok := f.FailOn[name]; ok {
		delete(f.FailOn, name)
		return err
	}
	return nil
}

func (f *FakeProvider) newID() string {
	f.nextID++
	return strconv.FormatInt(f.nextID, 10)
}

// EnsureNetwork implements Provider.
func (f *FakeProvider) EnsureNetwork(_ context.Context, name, ipRange string, _ map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(name); err != nil {
		return "", err
	}
	if n, ok := f.Networks[name]; ok {
		if n.ipRange != ipRange {
			return "", fmt.Errorf("network %s exists with range %s, want %s", name, n.ipRange, ipRange)
		}
		return n.id, nil
	}
	n := &fakeNetwork{id: f.newID(), ipRange: ipRange}
	f.Networks[name] = n
	f.record("create-network", name)
	return n.id, nil
}

// EnsureSubnet implements Provider.
func (f *FakeProvider) EnsureSubnet(_ context.Context, networkID, ipRange, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.Networks {
		if n.id != networkID {
			continue
		}
		for _, s := range n.subnets {
			if s == ipRange {
				return nil
			}
		}
		n.subnets = append(n.subnets, ipRange)
		f.record("create-subnet", ipRange)
		return nil
	}
	return fmt.Errorf("network %s not found", networkID)
}

// DeleteNetwork implements Provider.
func (f *FakeProvider) DeleteNetwork(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(name); err != nil {
		return err
	}
	if _, ok := f.Networks[name]; ok {
		delete(f.Networks, name)
		f.record("delete-network", name)
	}
	return nil
}

// EnsureFirewall implements Provider.
func (f *FakeProvider) EnsureFirewall(_ context.Context, name string, rules []hcloudlib.FirewallRule, labels map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(name); err != nil {
		return "", err
	}
	if _, ok := f.Firewalls[name]; ok {
		f.Firewalls[name] = rules
		f.record("update-firewall", name)
	} else {
		f.Firewalls[name] = rules
		f.record("create-firewall", name)
	}
	f.FirewallSelectors[name] = firewallApplyTo(labels)[0].LabelSelector.Selector
	return name, nil
}

// DeleteFirewall implements Provider.
func (f *FakeProvider) DeleteFirewall(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(name); err != nil {
		return err
	}
	if _, ok := f.Firewalls[name]; ok {
		delete(f.Firewalls, name)
		delete(f.FirewallSelectors, name)
		f.record("delete-firewall", name)
	}
	return nil
}

// CreateServer implements Provider.
func (f *FakeProvider) CreateServer(_ context.Context, spec ServerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(spec.Name); err != nil {
		return "", err
	}
	info := &ServerInfo{ID: f.newID(), Running: true}
	if spec.PrivateIP != nil {
		info.PrivateIP = spec.PrivateIP.String()
	}
	if spec.PublicIPv4 {
		info.PublicIP = "203.0.113." + info.ID
	}
	f.Servers[spec.Name] = info
	f.record("create-server", spec.Name)
	return info.ID, nil
}

// DeleteServer implements Provider.
func (f *FakeProvider) DeleteServer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(name); err != nil {
		return err
	}
	if _, ok := f.Servers[name]; ok {
		delete(f.Servers, name)
		f.record("delete-server", name)
	}
	return nil
}

// ServerStatus implements Provider.
func (f *FakeProvider) ServerStatus(_ context.Context, name string) (*ServerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unreachable != nil {
		return nil, f.Unreachable
	}
	info, ok := f.Servers[name]
	if !ok {
		return nil, nil
	}
	copied := *info
	return &copied, nil
}

// SetRunning flips a server's run state, for health check tests.
func (f *FakeProvider) SetRunning(name string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.Servers[name]; ok {
		info.Running = running
	}
}

// MutationCount returns how many mutations the fake has recorded.
func (f *FakeProvider) MutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
