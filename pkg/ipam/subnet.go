package ipam

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"net/netip"
	"sync"
)

// Subnet is one pool of contiguous IPv4 addresses plus its reservations.
// It tracks which MAC currently holds which address. The dynamic pool is
// a bitmap indexed by offset from the pool start, so the lowest free
// address is found by scanning for the first clear bit.
type Subnet struct {
	sync.Mutex
	name    string
	network netip.Prefix
	mask    netip.Addr
	gateway netip.Addr
	dns     []netip.Addr

	poolStart uint32
	poolSize  int
	used      []uint64 // set bits: allocated, or reserved inside the pool

	reservations map[MAC]netip.Addr
	reservedIPs  map[netip.Addr]MAC
	allocations  map[MAC]netip.Addr
}

// SubnetStats is a point-in-time summary of one subnet's pool.
type SubnetStats struct {
	Name      string `json:"name"`
	Total     int    `json:"total"`
	Allocated int    `json:"allocated"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
}

// NewSubnet builds a subnet from its configured pool range and
// reservations. Reserved addresses may lie outside the pool; reserved
// addresses inside the pool are excluded from dynamic selection.
func NewSubnet(name string, network netip.Prefix, poolStart, poolEnd, mask, gateway netip.Addr, dns []netip.Addr, reservations map[MAC]netip.Addr) (*Subnet, error) {
	if !poolStart.Is4() || !poolEnd.Is4() {
		return nil, fmt.Errorf("subnet %s: pool bounds must be IPv4 addresses", name)
	}
	start, end := addrToU32(poolStart), addrToU32(poolEnd)
	if start > end {
		return nil, fmt.Errorf("subnet %s: pool start %s is after pool end %s", name, poolStart, poolEnd)
	}
	size := int(end-start) + 1

	s := &Subnet{
		name:         name,
		network:      network,
		mask:         mask,
		gateway:      gateway,
		dns:          dns,
		poolStart:    start,
		poolSize:     size,
		used:         make([]uint64, (size+63)/64),
		reservations: make(map[MAC]netip.Addr, len(reservations)),
		reservedIPs:  make(map[netip.Addr]MAC, len(reservations)),
		allocations:  make(map[MAC]netip.Addr),
	}
	for mac, ip := range reservations {
		s.reservations[mac] = ip
		s.reservedIPs[ip] = mac
		if off, ok := s.offset(ip); ok {
			s.setBit(off)
		}
	}
	return s, nil
}

// Allocate assigns an address to a MAC. Priority: the MAC's own
// reservation, then its existing allocation, then the requested address
// if free, then the lowest free pool address. Returns false when the
// pool cannot satisfy the request.
func (s *Subnet) Allocate(mac MAC, requested netip.Addr) (netip.Addr, bool) {
	s.Lock()
	defer s.Unlock()

	// A configured reservation always wins, even outside the pool.
	if ip, ok := s.reservations[mac]; ok {
		s.allocations[mac] = ip
		return ip, true
	}

	// Repeated DISCOVER/REQUEST from the same client is idempotent.
	if ip, ok := s.allocations[mac]; ok {
		return ip, true
	}

	if requested.IsValid() {
		if off, ok := s.offset(requested); ok && !s.bit(off) {
			s.setBit(off)
			s.allocations[mac] = requested
			return requested, true
		}
	}

	off, ok := s.lowestFree()
	if !ok {
		return netip.Addr{}, false
	}
	s.setBit(off)
	ip := u32ToAddr(s.poolStart + uint32(off))
	s.allocations[mac] = ip
	return ip, true
}

// Release removes the MAC's dynamic allocation entry. A reservation is
// never freed: its in-pool bit stays set so the address remains
// earmarked for its owner.
func (s *Subnet) Release(mac MAC) bool {
	s.Lock()
	defer s.Unlock()

	ip, ok := s.allocations[mac]
	if !ok {
		return false
	}
	delete(s.allocations, mac)
	if _, reserved := s.reservedIPs[ip]; !reserved {
		if off, inPool := s.offset(ip); inPool {
			s.clearBit(off)
		}
	}
	return true
}

// IPForMAC returns the address tracked for a MAC. A reservation takes
// precedence over a dynamic allocation.
func (s *Subnet) IPForMAC(mac MAC) (netip.Addr, bool) {
	s.Lock()
	defer s.Unlock()

	if ip, ok := s.reservations[mac]; ok {
		return ip, true
	}
	ip, ok := s.allocations[mac]
	return ip, ok
}

// Name returns the configured subnet name.
func (s *Subnet) Name() string { return s.name }

// Network returns the subnet's address block.
func (s *Subnet) Network() netip.Prefix { return s.network }

// Mask returns the subnet mask handed to clients.
func (s *Subnet) Mask() netip.Addr { return s.mask }

// Gateway returns the configured gateway, which may be invalid when the
// subnet has none.
func (s *Subnet) Gateway() netip.Addr { return s.gateway }

// DNS returns the ordered DNS server list handed to clients.
func (s *Subnet) DNS() []netip.Addr { return s.dns }

// Contains reports whether an address falls inside the subnet's block.
func (s *Subnet) Contains(ip netip.Addr) bool {
	return s.network.IsValid() && s.network.Contains(ip)
}

// Stats returns a consistent snapshot of the pool counters.
func (s *Subnet) Stats() SubnetStats {
	s.Lock()
	defer s.Unlock()

	usedBits := 0
	for _, w := range s.used {
		usedBits += bits.OnesCount64(w)
	}
	return SubnetStats{
		Name:      s.name,
		Total:     s.poolSize,
		Allocated: len(s.allocations),
		Reserved:  len(s.reservations),
		Available: s.poolSize - usedBits,
	}
}

// offset maps a pool address to its bitmap index.
func (s *Subnet) offset(ip netip.Addr) (int, bool) {
	if !ip.Is4() {
		return 0, false
	}
	v := addrToU32(ip)
	if v < s.poolStart || v >= s.poolStart+uint32(s.poolSize) {
		return 0, false
	}
	return int(v - s.poolStart), true
}

func (s *Subnet) bit(off int) bool {
	return s.used[off/64]&(1<<(off%64)) != 0
}

func (s *Subnet) setBit(off int) {
	s.used[off/64] |= 1 << (off % 64)
}

func (s *Subnet) clearBit(off int) {
	s.used[off/64] &^= 1 << (off % 64)
}

// lowestFree returns the smallest clear bitmap index, preserving the
// lowest-address-first tie-break.
func (s *Subnet) lowestFree() (int, bool) {
	for w, word := range s.used {
		if word == ^uint64(0) {
			continue
		}
		off := w*64 + bits.TrailingZeros64(^word)
		if off < s.poolSize {
			return off, true
		}
	}
	return 0, false
}

func addrToU32(a netip.Addr) uint32 {
	a4 := a.As4()
	return binary.BigEndian.Uint32(a4[:])
}

func u32ToAddr(v uint32) netip.Addr {
	var a4 [4]byte
	binary.BigEndian.PutUint32(a4[:], v)
	return netip.AddrFrom4(a4)
}
