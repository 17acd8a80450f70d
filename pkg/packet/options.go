package packet

import (
	"encoding/binary"
	"net/netip"
)

// DHCP option codes used by this server (RFC 2132).
const (
	OptPad           byte = 0
	OptSubnetMask    byte = 1
	OptRouter        byte = 3
	OptDNSServers    byte = 6
	OptRequestedIP   byte = 50
	OptLeaseTime     byte = 51
	OptMessageType   byte = 53
	OptServerID      byte = 54
	OptParameterList byte = 55
	OptEnd           byte = 255
)

// Options is an insertion-ordered map from option code to raw value.
// Option order is not protocol-significant, but a stable emission order
// keeps built packets byte-for-byte reproducible. Setting a code that is
// already present overwrites the value and keeps its original position.
type Options struct {
	codes  []byte
	values map[byte][]byte
}

// Set stores a raw option value.
func (o *Options) Set(code byte, value []byte) {
	if o.values == nil {
		o.values = make(map[byte][]byte)
	}
	if _, ok := o.values[code]; !ok {
		o.codes = append(o.codes, code)
	}
	o.values[code] = value
}

// Get returns the raw value for a code.
func (o *Options) Get(code byte) ([]byte, bool) {
	v, ok := o.values[code]
	return v, ok
}

// Has reports whether a code is present.
func (o *Options) Has(code byte) bool {
	_, ok := o.values[code]
	return ok
}

// Len returns the number of options present.
func (o *Options) Len() int {
	return len(o.codes)
}

// Codes returns the option codes in insertion order.
func (o *Options) Codes() []byte {
	out := make([]byte, len(o.codes))
	copy(out, o.codes)
	return out
}

// SetByte stores a single-byte option value.
func (o *Options) SetByte(code, value byte) {
	o.Set(code, []byte{value})
}

// SetUint32 stores a big-endian 32-bit option value.
func (o *Options) SetUint32(code byte, value uint32) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, value)
	o.Set(code, v)
}

// SetAddr stores an IPv4 address option value.
func (o *Options) SetAddr(code byte, addr netip.Addr) {
	a4 := addr.As4()
	o.Set(code, a4[:])
}

// SetAddrs stores a concatenated list of IPv4 addresses.
func (o *Options) SetAddrs(code byte, addrs []netip.Addr) {
	v := make([]byte, 0, 4*len(addrs))
	for _, a := range addrs {
		a4 := a.As4()
		v = append(v, a4[:]...)
	}
	o.Set(code, v)
}

// Byte returns a single-byte option value.
func (o *Options) Byte(code byte) (byte, bool) {
	v, ok := o.values[code]
	if !ok || len(v) != 1 {
		return 0, false
	}
	return v[0], true
}

// Uint32 returns a big-endian 32-bit option value.
func (o *Options) Uint32(code byte) (uint32, bool) {
	v, ok := o.values[code]
	if !ok || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

// Addr returns an IPv4 address option value.
func (o *Options) Addr(code byte) (netip.Addr, bool) {
	v, ok := o.values[code]
	if !ok || len(v) != 4 {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4([4]byte(v)), true
}
