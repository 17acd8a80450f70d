package ipam

import (
	"net/netip"
	"sync"

	"github.com/rs/zerolog"
)

// Manager routes allocation requests to an ordered list of subnets and
// holds the global, subnet-independent reservation table.
type Manager struct {
	sync.Mutex
	subnets []*Subnet
	global  map[MAC]netip.Addr
	logger  zerolog.Logger
}

// NewManager creates a manager. Subnet order is selection order.
func NewManager(subnets []*Subnet, global map[MAC]netip.Addr, logger zerolog.Logger) *Manager {
	if global == nil {
		global = make(map[MAC]netip.Addr)
	}
	return &Manager{
		subnets: subnets,
		global:  global,
		logger:  logger.With().Str("component", "ipam").Logger(),
	}
}

// Allocate picks an address for a MAC. A global reservation
// short-circuits everything; otherwise the relay address, then the
// requested address, route the request to a specific subnet; otherwise
// the first subnet able to satisfy it wins. The returned subnet is the
// one whose parameters should populate the reply options and may be nil
// for a globally reserved address outside every subnet.
func (m *Manager) Allocate(mac MAC, requested, giaddr netip.Addr) (netip.Addr, *Subnet, bool) {
	m.Lock()
	defer m.Unlock()

	if ip, ok := m.global[mac]; ok {
		sub := m.subnetContaining(ip)
		m.logger.Info().Str("mac", mac.String()).Str("ip", ip.String()).Msg("Using global reservation")
		return ip, sub, true
	}

	if giaddr.IsValid() && !giaddr.IsUnspecified() {
		for _, sub := range m.subnets {
			if sub.Gateway() == giaddr || sub.Contains(giaddr) {
				ip, ok := sub.Allocate(mac, requested)
				if ok {
					m.logger.Info().Str("mac", mac.String()).Str("ip", ip.String()).Str("subnet", sub.Name()).Msg("Allocated via relay subnet")
				}
				return ip, sub, ok
			}
		}
	}

	if requested.IsValid() && !requested.IsUnspecified() {
		for _, sub := range m.subnets {
			if sub.Contains(requested) {
				ip, ok := sub.Allocate(mac, requested)
				if ok {
					m.logger.Info().Str("mac", mac.String()).Str("ip", ip.String()).Str("subnet", sub.Name()).Msg("Allocated in requested subnet")
				}
				return ip, sub, ok
			}
		}
	}

	for _, sub := range m.subnets {
		if ip, ok := sub.Allocate(mac, requested); ok {
			m.logger.Info().Str("mac", mac.String()).Str("ip", ip.String()).Str("subnet", sub.Name()).Msg("Allocated")
			return ip, sub, true
		}
	}

	m.logger.Warn().Str("mac", mac.String()).Msg("No address available in any subnet")
	return netip.Addr{}, nil, false
}

// Release clears the MAC's allocation from the first subnet that holds
// one. A MAC is allocated in at most one subnet at a time.
func (m *Manager) Release(mac MAC) bool {
	m.Lock()
	defer m.Unlock()

	for _, sub := range m.subnets {
		if sub.Release(mac) {
			m.logger.Info().Str("mac", mac.String()).Str("subnet", sub.Name()).Msg("Released allocation")
			return true
		}
	}
	return false
}

// IPForMAC returns the address tracked for a MAC, checking the global
// reservation table before the subnets.
func (m *Manager) IPForMAC(mac MAC) (netip.Addr, bool) {
	m.Lock()
	defer m.Unlock()

	if ip, ok := m.global[mac]; ok {
		return ip, true
	}
	for _, sub := range m.subnets {
		if ip, ok := sub.IPForMAC(mac); ok {
			return ip, true
		}
	}
	return netip.Addr{}, false
}

// Subnets returns the subnets in selection order.
func (m *Manager) Subnets() []*Subnet {
	return m.subnets
}

// Stats returns per-subnet pool statistics.
func (m *Manager) Stats() []SubnetStats {
	out := make([]SubnetStats, 0, len(m.subnets))
	for _, sub := range m.subnets {
		out = append(out, sub.Stats())
	}
	return out
}

func (m *Manager) subnetContaining(ip netip.Addr) *Subnet {
	for _, sub := range m.subnets {
		if sub.Contains(ip) {
			return sub
		}
	}
	return nil
}
