// Package engine dispatches decoded DHCP messages: it classifies them
// by message type, drives address allocation and the lease store, and
// produces the reply message, if any.
package engine

import (
	"net/netip"
	"time"

	"dhcpd-go/pkg/ipam"
	"dhcpd-go/pkg/lease"
	"dhcpd-go/pkg/metrics"
	"dhcpd-go/pkg/packet"
	"github.com/rs/zerolog"
)

// Engine consumes decoded messages and produces replies. It holds no
// per-transaction state between datagrams; everything durable lives in
// the IP manager and the lease store.
type Engine struct {
	serverIP  netip.Addr
	leaseTime time.Duration
	ipm       *ipam.Manager
	leases    *lease.Store
	limiter   *RateLimiter
	recorder  metrics.Recorder
	logger    zerolog.Logger
}

// New creates an engine.
func New(serverIP netip.Addr, leaseTime time.Duration, ipm *ipam.Manager, leases *lease.Store, limiter *RateLimiter, recorder metrics.Recorder, logger zerolog.Logger) *Engine {
	return &Engine{
		serverIP:  serverIP,
		leaseTime: leaseTime,
		ipm:       ipm,
		leases:    leases,
		limiter:   limiter,
		recorder:  recorder,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
}

// Handle processes one inbound message and returns the reply to
// broadcast, or nil when no reply is produced. Every failure is local
// to the message: the engine never returns an error to the caller.
func (e *Engine) Handle(req *packet.Message) *packet.Message {
	msgType, ok := req.Type()
	if !ok {
		e.logger.Warn().Uint32("xid", req.XID).Msg("Message has no DHCP message type option")
		return nil
	}

	mac, err := ipam.MACFromHardwareAddr(req.HardwareAddr())
	if err != nil {
		e.logger.Warn().Err(err).Str("type", msgType.String()).Msg("Unusable client hardware address")
		return nil
	}

	e.logger.Debug().Str("type", msgType.String()).Str("mac", mac.String()).Uint32("xid", req.XID).Msg("Received DHCP message")

	switch msgType {
	case packet.Discover:
		return e.handleDiscover(req, mac)
	case packet.Request:
		return e.handleRequest(req, mac)
	case packet.Release:
		return e.handleRelease(req, mac)
	default:
		e.logger.Warn().Str("type", msgType.String()).Str("mac", mac.String()).Msg("Unhandled DHCP message type")
		e.recorder.IncCounter("dhcp_messages_ignored_total", metrics.Labels{"type": msgType.String()})
		return nil
	}
}

func (e *Engine) handleDiscover(req *packet.Message, mac ipam.MAC) *packet.Message {
	if e.limiter != nil && !e.limiter.Allowed(mac) {
		e.recorder.IncCounter("dhcp_rate_limited_total", nil)
		return nil
	}

	requested, _ := req.RequestedIP()
	ip, sub, ok := e.ipm.Allocate(mac, requested, req.GIAddr)
	if !ok {
		// Capacity exhaustion is surfaced via pool statistics, not a
		// reply: the DISCOVER is dropped.
		e.logger.Warn().Str("mac", mac.String()).Msg("No address available, dropping DISCOVER")
		e.recorder.IncCounter("dhcp_allocation_denied_total", nil)
		return nil
	}

	e.recorder.IncCounter("dhcp_offers_total", nil)
	e.logger.Info().Str("mac", mac.String()).Str("ip", ip.String()).Msg("Offering IP")
	return e.buildReply(req, packet.Offer, ip, sub)
}

func (e *Engine) handleRequest(req *packet.Message, mac ipam.MAC) *packet.Message {
	if e.limiter != nil && !e.limiter.Allowed(mac) {
		e.recorder.IncCounter("dhcp_rate_limited_total", nil)
		return nil
	}

	requested, ok := req.RequestedIP()
	if !ok {
		requested = req.CIAddr
	}
	if !requested.IsValid() || requested.IsUnspecified() {
		e.logger.Warn().Str("mac", mac.String()).Msg("REQUEST carries no requested IP")
		return nil
	}

	current, ok := e.ipm.IPForMAC(mac)
	if !ok || current != requested {
		// NAK generation is not implemented; the mismatch is logged
		// and the request dropped.
		e.logger.Warn().Str("mac", mac.String()).Str("requested", requested.String()).Msg("Requested IP does not match tracked allocation")
		e.recorder.IncCounter("dhcp_request_mismatch_total", nil)
		return nil
	}

	// The snapshot write inside Create completes before the ACK is
	// returned, so an acknowledged lease is durable.
	e.leases.Create(mac, current, e.leaseTime)
	e.recorder.IncCounter("dhcp_acks_total", nil)

	var sub *ipam.Subnet
	for _, s := range e.ipm.Subnets() {
		if s.Contains(current) {
			sub = s
			break
		}
	}
	e.logger.Info().Str("mac", mac.String()).Str("ip", current.String()).Msg("ACKing IP")
	return e.buildReply(req, packet.Ack, current, sub)
}

func (e *Engine) handleRelease(req *packet.Message, mac ipam.MAC) *packet.Message {
	// RELEASE is fire-and-forget: no reply in any case.
	e.leases.Release(mac)
	e.ipm.Release(mac)
	e.recorder.IncCounter("dhcp_releases_total", nil)
	e.logger.Info().Str("mac", mac.String()).Msg("Released address")
	return nil
}

// buildReply constructs an OFFER or ACK. Options are emitted in a fixed
// order (53, 54, 51, 1, 3, 6) so replies are byte-for-byte reproducible.
func (e *Engine) buildReply(req *packet.Message, msgType packet.MessageType, ip netip.Addr, sub *ipam.Subnet) *packet.Message {
	reply := packet.New()
	reply.Op = packet.BootReply
	reply.HType = req.HType
	reply.HLen = req.HLen
	reply.XID = req.XID
	reply.Flags = req.Flags
	reply.YIAddr = ip
	reply.SIAddr = e.serverIP
	reply.CHAddr = append([]byte(nil), req.CHAddr...)

	serverID := e.serverIP
	if sub != nil && sub.Gateway().IsValid() {
		serverID = sub.Gateway()
	}

	reply.Options.SetByte(packet.OptMessageType, byte(msgType))
	reply.Options.SetAddr(packet.OptServerID, serverID)
	reply.Options.SetUint32(packet.OptLeaseTime, uint32(e.leaseTime/time.Second))
	if sub != nil {
		if sub.Mask().IsValid() {
			reply.Options.SetAddr(packet.OptSubnetMask, sub.Mask())
		}
		if sub.Gateway().IsValid() {
			reply.Options.SetAddr(packet.OptRouter, sub.Gateway())
		}
		if dns := sub.DNS(); len(dns) > 0 {
			reply.Options.SetAddrs(packet.OptDNSServers, dns)
		}
	}

	return reply
}

// PublishStats pushes pool and lease gauges to the recorder. The caller
// runs it on a ticker.
func (e *Engine) PublishStats() {
	for _, st := range e.ipm.Stats() {
		labels := metrics.Labels{"subnet": st.Name}
		e.recorder.SetGauge("dhcp_pool_total", labels, float64(st.Total))
		e.recorder.SetGauge("dhcp_pool_allocated", labels, float64(st.Allocated))
		e.recorder.SetGauge("dhcp_pool_available", labels, float64(st.Available))
	}
	ls := e.leases.Stats()
	e.recorder.SetGauge("dhcp_leases_active", nil, float64(ls.Active))
	e.recorder.SetGauge("dhcp_leases_total", nil, float64(ls.Total))
}
