// dhcpprobe is a standalone test client: it runs a DISCOVER/REQUEST
// handshake against a DHCP server and prints the replies. It uses an
// independent DHCP implementation, so a successful handshake also
// cross-checks the server's wire format.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	macStr := flag.String("mac", "de:ad:be:ef:00:01", "Client MAC address to probe with")
	serverStr := flag.String("server", "255.255.255.255:67", "DHCP server address")
	timeout := flag.Duration("timeout", 5*time.Second, "Reply timeout")
	flag.Parse()

	mac, err := net.ParseMAC(*macStr)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid MAC address")
	}
	serverAddr, err := net.ResolveUDPAddr("udp4", *serverStr)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid server address")
	}

	conn, err := bindClientSocket()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bind client socket (port 68 requires root)")
	}
	defer conn.Close()

	discover, err := dhcpv4.New(
		dhcpv4.WithHwAddr(mac),
		dhcpv4.WithMessageType(dhcpv4.MessageTypeDiscover),
		dhcpv4.WithBroadcast(true),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build DISCOVER")
	}

	log.Info().Str("mac", mac.String()).Msg("Sending DISCOVER")
	offer, err := exchange(conn, serverAddr, discover, *timeout)
	if err != nil {
		log.Fatal().Err(err).Msg("No OFFER received")
	}
	fmt.Println(offer.Summary())

	request, err := dhcpv4.New(
		dhcpv4.WithHwAddr(mac),
		dhcpv4.WithMessageType(dhcpv4.MessageTypeRequest),
		dhcpv4.WithBroadcast(true),
		dhcpv4.WithOption(dhcpv4.OptRequestedIPAddress(offer.YourIPAddr)),
		dhcpv4.WithOption(dhcpv4.OptServerIdentifier(offer.ServerIdentifier())),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build REQUEST")
	}

	log.Info().Str("ip", offer.YourIPAddr.String()).Msg("Sending REQUEST")
	ack, err := exchange(conn, serverAddr, request, *timeout)
	if err != nil {
		log.Fatal().Err(err).Msg("No ACK received")
	}
	fmt.Println(ack.Summary())

	if ack.MessageType() == dhcpv4.MessageTypeAck {
		log.Info().Str("ip", ack.YourIPAddr.String()).Msg("Handshake complete")
	} else {
		log.Warn().Str("type", ack.MessageType().String()).Msg("Unexpected reply type")
	}
}

// exchange sends a message and waits for a reply with the same
// transaction ID.
func exchange(conn *net.UDPConn, server *net.UDPAddr, msg *dhcpv4.DHCPv4, timeout time.Duration) (*dhcpv4.DHCPv4, error) {
	if _, err := conn.WriteToUDP(msg.ToBytes(), server); err != nil {
		return nil, fmt.Errorf("send failed: %w", err)
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 1500)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil, fmt.Errorf("no reply within %s: %w", timeout, err)
		}
		reply, err := dhcpv4.FromBytes(buf[:n])
		if err != nil {
			continue
		}
		if reply.TransactionID == msg.TransactionID {
			return reply, nil
		}
	}
}

func bindClientSocket() (*net.UDPConn, error) {
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
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":68")
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
