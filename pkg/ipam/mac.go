// Package ipam manages IPv4 address pools: per-subnet dynamic
// allocation, MAC reservations and the routing of allocation requests
// across subnets.
package ipam

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
)

// MAC is a canonical 48-bit hardware address. Using a fixed-size value
// type keeps map keys normalized instead of rewriting strings at every
// call site.
type MAC [6]byte

// ParseMAC parses a MAC address in colon, dash, dot or bare-hex form.
func ParseMAC(s string) (MAC, error) {
	var m MAC
	clean := strings.NewReplacer(":", "", "-", "", ".", "").Replace(strings.ToLower(s))
	if len(clean) != 12 {
		return m, fmt.Errorf("invalid MAC address %q", s)
	}
	if _, err := hex.Decode(m[:], []byte(clean)); err != nil {
		return m, fmt.Errorf("invalid MAC address %q: %w", s, err)
	}
	return m, nil
}

// MACFromHardwareAddr converts a net.HardwareAddr. Only 6-byte
// (Ethernet) addresses are accepted.
func MACFromHardwareAddr(hw net.HardwareAddr) (MAC, error) {
	var m MAC
	if len(hw) != 6 {
		return m, fmt.Errorf("hardware address %q is not 6 bytes", hw.String())
	}
	copy(m[:], hw)
	return m, nil
}

// String returns the lowercase colon-separated form.
func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// HardwareAddr returns the address as a net.HardwareAddr.
func (m MAC) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr(m[:])
}

// MarshalText implements encoding.TextMarshaler so MACs can key
// persisted JSON maps.
func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MAC) UnmarshalText(text []byte) error {
	parsed, err := ParseMAC(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
