// Package packet implements the DHCP wire format defined by RFC 2131:
// the fixed 236-byte header, the magic cookie and the TLV option block.
// It has no knowledge of allocation policy.
package packet

import (
	"net"
	"net/netip"
)

// Op is the BOOTP message op code.
type Op byte

const (
	BootRequest Op = 1
	BootReply   Op = 2
)

// MessageType is the DHCP message type carried in option 53.
type MessageType byte

const (
	Discover MessageType = 1
	Offer    MessageType = 2
	Request  MessageType = 3
	Decline  MessageType = 4
	Ack      MessageType = 5
	Nak      MessageType = 6
	Release  MessageType = 7
	Inform   MessageType = 8
)

func (t MessageType) String() string {
	switch t {
	case Discover:
		return "DISCOVER"
	case Offer:
		return "OFFER"
	case Request:
		return "REQUEST"
	case Decline:
		return "DECLINE"
	case Ack:
		return "ACK"
	case Nak:
		return "NAK"
	case Release:
		return "RELEASE"
	case Inform:
		return "INFORM"
	}
	return "UNKNOWN"
}

// Message is a decoded DHCP packet. The four address fields hold IPv4
// addresses; the zero netip.Addr serializes as 0.0.0.0.
type Message struct {
	Op     Op
	HType  byte
	HLen   byte
	Hops   byte
	XID    uint32
	Secs   uint16
	Flags  uint16
	CIAddr netip.Addr // client's current address (ciaddr)
	YIAddr netip.Addr // address assigned by the server (yiaddr)
	SIAddr netip.Addr // next server address (siaddr)
	GIAddr netip.Addr // relay agent address (giaddr)
	CHAddr []byte     // client hardware address, at most 16 bytes
	SName  [64]byte
	File   [128]byte

	Options Options
}

// New returns a message with the Ethernet hardware defaults set.
func New() *Message {
	return &Message{
		HType: 1,
		HLen:  6,
	}
}

// Type returns the DHCP message type from option 53.
func (m *Message) Type() (MessageType, bool) {
	b, ok := m.Options.Byte(OptMessageType)
	return MessageType(b), ok
}

// HardwareAddr returns the client hardware address truncated to HLen.
func (m *Message) HardwareAddr() net.HardwareAddr {
	n := int(m.HLen)
	if n > len(m.CHAddr) {
		n = len(m.CHAddr)
	}
	return net.HardwareAddr(m.CHAddr[:n])
}

// RequestedIP returns the requested IP address from option 50.
func (m *Message) RequestedIP() (netip.Addr, bool) {
	return m.Options.Addr(OptRequestedIP)
}
