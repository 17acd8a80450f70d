// Package server runs the UDP socket loop: raw datagrams in on port 67,
// core-produced replies broadcast to port 68.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"dhcpd-go/pkg/engine"
	"dhcpd-go/pkg/metrics"
	"dhcpd-go/pkg/packet"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// broadcastAddr is where every reply goes (RFC 2131 client port).
var broadcastAddr = &net.UDPAddr{IP: net.IPv4bcast, Port: 68}

// Server owns the DHCP socket. Datagrams are processed one at a time,
// so the engine sees strictly serialized messages.
type Server struct {
	engine   *engine.Engine
	limiter  *rate.Limiter
	recorder metrics.Recorder
	logger   zerolog.Logger
	conn     *net.UDPConn
}

// New creates a server. The limiter bounds the global inbound datagram
// rate; pass nil to disable.
func New(eng *engine.Engine, limiter *rate.Limiter, recorder metrics.Recorder, logger zerolog.Logger) *Server {
	return &Server{
		engine:   eng,
		limiter:  limiter,
		recorder: recorder,
		logger:   logger.With().Str("component", "server").Logger(),
	}
}

// ListenAndServe binds UDP port 67 with SO_BROADCAST set and serves
// until Close is called.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = ":67"
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return fmt.Errorf("failed to bind DHCP socket on %s: %w", addr, err)
	}
	s.conn = pc.(*net.UDPConn)
	s.logger.Info().Str("addr", addr).Msg("DHCP server listening")

	return s.serve()
}

func (s *Server) serve() error {
	buf := make([]byte, 1500)
	for {
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read error on DHCP socket: %w", err)
		}
		s.handleDatagram(buf[:n], peer)
	}
}

// handleDatagram processes one datagram end to end. Failures are local:
// nothing here may take the loop down.
func (s *Server) handleDatagram(data []byte, peer *net.UDPAddr) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.recorder.IncCounter("dhcp_datagrams_rate_limited_total", nil)
		return
	}
	s.recorder.IncCounter("dhcp_datagrams_received_total", nil)

	req, err := packet.Parse(data)
	if err != nil {
		s.logger.Warn().Err(err).Str("peer", peer.String()).Int("len", len(data)).Msg("Failed to parse DHCP packet")
		s.recorder.IncCounter("dhcp_parse_failures_total", nil)
		return
	}

	reply := s.engine.Handle(req)
	if reply == nil {
		return
	}

	if _, err := s.conn.WriteToUDP(reply.Build(), broadcastAddr); err != nil {
		s.logger.Error().Err(err).Msg("Failed to broadcast DHCP reply")
		s.recorder.IncCounter("dhcp_send_failures_total", nil)
	}
}

// LocalAddr returns the bound socket address, or nil before
// ListenAndServe has bound it.
func (s *Server) LocalAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Close shuts the socket down, unblocking the serve loop.
func (s *Server) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
