package topology

import (
	"encoding/binary"
	"fmt"
	"net"
)

// CIDRSubnet calculates a subnet address given a network prefix, a
// netmask size increase, and a zero-based subnet number. Only IPv4
// prefixes are supported.
func CIDRSubnet(prefix string, newbits, netnum int) (string, error) {
	network, err := parseIPv4CIDR(prefix)
	if err != nil {
		return "", err
	}

	maskSize, totalBits := network.Mask.Size()
	newMaskSize := maskSize + newbits
	if newMaskSize > totalBits {
		return "", fmt.Errorf("prefix extension of %d bits is too large for %s", newbits, prefix)
	}
	if netnum >= 1<<newbits {
		return "", fmt.Errorf("subnet number %d exceeds max subnets %d", netnum, 1<<newbits)
	}

	base := ipToUint32(network.IP)
	subnetSize := uint32(1) << (totalBits - newMaskSize)
	return fmt.Sprintf("%s/%d", uint32ToIP(base+uint32(netnum)*subnetSize), newMaskSize), nil
}

// CIDRHost calculates the hostnum-th host address inside prefix.
// Only IPv4 prefixes are supported.
func CIDRHost(prefix string, hostnum int) (string, error) {
	network, err := parseIPv4CIDR(prefix)
	if err != nil {
		return "", err
	}

	maskSize, totalBits := network.Mask.Size()
	maxHosts := uint32(1) << (totalBits - maskSize)
	if hostnum < 0 || uint32(hostnum) >= maxHosts {
		return "", fmt.Errorf("host number %d out of range for %s", hostnum, prefix)
	}

	return uint32ToIP(ipToUint32(network.IP) + uint32(hostnum)).String(), nil
}

// CIDRContains reports whether inner is fully contained in outer.
func CIDRContains(outer, inner string) (bool, error) {
	outerNet, err := parseIPv4CIDR(outer)
	if err != nil {
		return false, err
	}
	innerNet, err := parseIPv4CIDR(inner)
	if err != nil {
		return false, err
	}

	outerSize, _ := outerNet.Mask.Size()
	innerSize, _ := innerNet.Mask.Size()
	if innerSize < outerSize {
		return false, nil
	}
	return outerNet.Contains(innerNet.IP), nil
}

// CIDRsOverlap reports whether two ranges share any address.
func CIDRsOverlap(a, b string) (bool, error) {
	aNet, err := parseIPv4CIDR(a)
	if err != nil {
		return false, err
	}
	bNet, err := parseIPv4CIDR(b)
	if err != nil {
		return false, err
	}
	return aNet.Contains(bNet.IP) || bNet.Contains(aNet.IP), nil
}

func parseIPv4CIDR(prefix string) (*net.IPNet, error) {
	_, network, err := net.ParseCIDR(prefix)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR prefix: %w", err)
	}
	if network.IP.To4() == nil {
		return nil, fmt.Errorf("only IPv4 ranges are supported, got %s", prefix)
	}
	return network, nil
}

func ipToUint32(ip net.IP) uint32 {
	return binary.BigEndian.Uint32(ip.To4())
}

func uint32ToIP(val uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, val)
	return ip
}
