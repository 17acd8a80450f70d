package config

import (
	"fmt"
	"math/bits"
	"net/netip"

	"dhcpd-go/pkg/ipam"
)

// BuildSubnets translates the configuration into ipam subnets in
// selection order, plus the global reservation table. In the legacy
// single-pool form the reservations belong to the one subnet and the
// global table is empty; in the multi-subnet form the top-level
// reservations are global. Validate should have been called first.
func (c *Config) BuildSubnets() ([]*ipam.Subnet, map[ipam.MAC]netip.Addr, error) {
	if len(c.Subnets) == 0 {
		sub, err := buildSubnet(SubnetConfig{
			Name:         "default",
			IPPoolStart:  c.IPPoolStart,
			IPPoolEnd:    c.IPPoolEnd,
			SubnetMask:   c.SubnetMask,
			Gateway:      c.Gateway,
			DNSServers:   c.DNSServers,
			Reservations: c.Reservations,
		})
		if err != nil {
			return nil, nil, err
		}
		return []*ipam.Subnet{sub}, nil, nil
	}

	subnets := make([]*ipam.Subnet, 0, len(c.Subnets))
	for _, sc := range c.Subnets {
		sub, err := buildSubnet(sc)
		if err != nil {
			return nil, nil, err
		}
		subnets = append(subnets, sub)
	}

	global, err := parseReservations(c.Reservations)
	if err != nil {
		return nil, nil, fmt.Errorf("global reservations: %w", err)
	}
	return subnets, global, nil
}

func buildSubnet(sc SubnetConfig) (*ipam.Subnet, error) {
	start, err := netip.ParseAddr(sc.IPPoolStart)
	if err != nil {
		return nil, fmt.Errorf("subnet %s: invalid ip_pool_start: %w", sc.Name, err)
	}
	end, err := netip.ParseAddr(sc.IPPoolEnd)
	if err != nil {
		return nil, fmt.Errorf("subnet %s: invalid ip_pool_end: %w", sc.Name, err)
	}
	mask, err := netip.ParseAddr(sc.SubnetMask)
	if err != nil {
		return nil, fmt.Errorf("subnet %s: invalid subnet_mask: %w", sc.Name, err)
	}

	var gateway netip.Addr
	if sc.Gateway != "" {
		gateway, err = netip.ParseAddr(sc.Gateway)
		if err != nil {
			return nil, fmt.Errorf("subnet %s: invalid gateway: %w", sc.Name, err)
		}
	}

	var network netip.Prefix
	if sc.Network != "" {
		network, err = netip.ParsePrefix(sc.Network)
		if err != nil {
			return nil, fmt.Errorf("subnet %s: invalid network: %w", sc.Name, err)
		}
		network = network.Masked()
	} else {
		// Legacy form has no CIDR: derive the block from the pool
		// start and the mask.
		network = netip.PrefixFrom(start, maskBits(mask)).Masked()
	}

	dns := make([]netip.Addr, 0, len(sc.DNSServers))
	for _, d := range sc.DNSServers {
		addr, err := netip.ParseAddr(d)
		if err != nil {
			return nil, fmt.Errorf("subnet %s: invalid DNS server: %w", sc.Name, err)
		}
		dns = append(dns, addr)
	}

	reservations, err := parseReservations(sc.Reservations)
	if err != nil {
		return nil, fmt.Errorf("subnet %s: %w", sc.Name, err)
	}

	return ipam.NewSubnet(sc.Name, network, start, end, mask, gateway, dns, reservations)
}

func parseReservations(in map[string]string) (map[ipam.MAC]netip.Addr, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[ipam.MAC]netip.Addr, len(in))
	for macStr, ipStr := range in {
		mac, err := ipam.ParseMAC(macStr)
		if err != nil {
			return nil, err
		}
		ip, err := netip.ParseAddr(ipStr)
		if err != nil {
			return nil, fmt.Errorf("invalid reserved IP %q for %s: %w", ipStr, macStr, err)
		}
		out[mac] = ip
	}
	return out, nil
}

func parseMACKey(s string) (ipam.MAC, error) {
	return ipam.ParseMAC(s)
}

func maskBits(mask netip.Addr) int {
	n := 0
	for _, b := range mask.As4() {
		n += bits.OnesCount8(b)
	}
	return n
}
