package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// HeaderSize is the size of the fixed RFC 2131 header.
const HeaderSize = 236

// MagicCookie marks the start of the option block.
var MagicCookie = [4]byte{0x63, 0x82, 0x53, 0x63}

// ErrTooShort is returned when the input cannot hold the fixed header.
var ErrTooShort = errors.New("packet shorter than fixed DHCP header")

// Parse decodes a raw DHCP packet. A missing or mismatched magic cookie
// yields a valid header with empty options; a truncated trailing option
// stops the scan and keeps the options parsed before it.
func Parse(data []byte) (*Message, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes (minimum %d)", ErrTooShort, len(data), HeaderSize)
	}

	m := &Message{
		Op:     Op(data[0]),
		HType:  data[1],
		HLen:   data[2],
		Hops:   data[3],
		XID:    binary.BigEndian.Uint32(data[4:8]),
		Secs:   binary.BigEndian.Uint16(data[8:10]),
		Flags:  binary.BigEndian.Uint16(data[10:12]),
		CIAddr: netip.AddrFrom4([4]byte(data[12:16])),
		YIAddr: netip.AddrFrom4([4]byte(data[16:20])),
		SIAddr: netip.AddrFrom4([4]byte(data[20:24])),
		GIAddr: netip.AddrFrom4([4]byte(data[24:28])),
	}

	hlen := int(m.HLen)
	if hlen > 16 {
		hlen = 16
	}
	m.CHAddr = append([]byte(nil), data[28:28+hlen]...)
	copy(m.SName[:], data[44:108])
	copy(m.File[:], data[108:HeaderSize])

	rest := data[HeaderSize:]
	if len(rest) >= 4 && [4]byte(rest[:4]) == MagicCookie {
		parseOptions(rest[4:], &m.Options)
	}

	return m, nil
}

// parseOptions scans (code, length, value) triples until the end marker
// or input exhaustion. Pad bytes carry no length.
func parseOptions(data []byte, opts *Options) {
	i := 0
	for i < len(data) {
		code := data[i]
		if code == OptEnd {
			break
		}
		if code == OptPad {
			i++
			continue
		}
		if i+1 >= len(data) {
			break
		}
		length := int(data[i+1])
		if i+2+length > len(data) {
			// Truncated option: keep everything parsed so far.
			break
		}
		opts.Set(code, append([]byte(nil), data[i+2:i+2+length]...))
		i += 2 + length
	}
}

// Build serializes the message: fixed header with zero-padded blocks,
// magic cookie, options in insertion order, then the end marker.
func (m *Message) Build() []byte {
	buf := make([]byte, HeaderSize, HeaderSize+64)

	buf[0] = byte(m.Op)
	buf[1] = m.HType
	buf[2] = m.HLen
	buf[3] = m.Hops
	binary.BigEndian.PutUint32(buf[4:8], m.XID)
	binary.BigEndian.PutUint16(buf[8:10], m.Secs)
	binary.BigEndian.PutUint16(buf[10:12], m.Flags)
	putAddr(buf[12:16], m.CIAddr)
	putAddr(buf[16:20], m.YIAddr)
	putAddr(buf[20:24], m.SIAddr)
	putAddr(buf[24:28], m.GIAddr)

	hw := m.CHAddr
	if len(hw) > 16 {
		hw = hw[:16]
	}
	copy(buf[28:44], hw)
	copy(buf[44:108], m.SName[:])
	copy(buf[108:HeaderSize], m.File[:])

	buf = append(buf, MagicCookie[:]...)
	for _, code := range m.Options.codes {
		value := m.Options.values[code]
		buf = append(buf, code, byte(len(value)))
		buf = append(buf, value...)
	}
	buf = append(buf, OptEnd)

	return buf
}

func putAddr(b []byte, a netip.Addr) {
	if !a.IsValid() {
		return
	}
	a4 := a.As4()
	copy(b, a4[:])
}
