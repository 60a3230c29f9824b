// Package dispatch owns the single-threaded event loop of spec.md §4.G: it
// reads the raw broadcast socket, decodes packets, matches them against the
// running client.Client by client hardware address (client.Client checks
// the transaction ID itself), and feeds timer fires from the
// shared internal/timer.Wheel, so that client.Client itself never blocks on
// I/O.
package dispatch

import (
	"fmt"
	"net"
	"time"

	"github.com/AdguardTeam/dhclient-go/internal/client"
	"github.com/AdguardTeam/dhclient-go/internal/dhcpmsg"
	"github.com/AdguardTeam/dhclient-go/internal/ipv4wire"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/mdlayher/ethernet"
	"github.com/mdlayher/raw"
)

var _ client.Transport = (*RawTransport)(nil)

// udpClientPort and udpServerPort are the well-known BOOTP/DHCP ports
// (RFC 2131 §4.1).
const (
	udpClientPort = 68
	udpServerPort = 67
)

// RawTransport sends and receives DHCP packets over a raw Ethernet broadcast
// socket, so the client can speak DHCP before its interface has a configured
// address. Grounded on internal/dhcpd/nclient4's conn_unix.go
// (NewRawUDPConn/BroadcastRawUDPConn) for the mdlayher/raw socket setup and
// the "always broadcast, never ARP" send behavior, rewritten to own the
// IPv4/UDP envelope itself via internal/ipv4wire rather than going through a
// generic net.PacketConn wrapper, since RawTransport is the only caller this
// envelope ever has.
type RawTransport struct {
	conn net.PacketConn
}

// NewRawTransport opens a raw Ethernet socket bound to ifaceName, ready to
// send and receive BOOTP/DHCP frames. ifaceName need not have an IPv4
// address configured yet.
func NewRawTransport(ifaceName string) (t *RawTransport, err error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %q: %w", ifaceName, err)
	}

	conn, err := raw.ListenPacket(iface, uint16(ethernet.EtherTypeIPv4), &raw.Config{LinuxSockDGRAM: true})
	if err != nil {
		return nil, fmt.Errorf("opening raw socket on %q: %w", ifaceName, err)
	}

	return &RawTransport{conn: conn}, nil
}

// Close releases the underlying socket.
func (t *RawTransport) Close() (err error) {
	return t.conn.Close()
}

// SetReadDeadline bounds the next ReadPacket call, so Loop.Run can interleave
// socket waits with pending timer fires.
func (t *RawTransport) SetReadDeadline(deadline time.Time) (err error) {
	return t.conn.SetReadDeadline(deadline)
}

// Send implements client.Transport.
//
// broadcast is accepted but unused: every send goes to the Ethernet
// broadcast MAC regardless of the IP destination, since this client has no
// ARP implementation of its own to resolve a unicast next hop. See
// DESIGN.md.
func (t *RawTransport) Send(pkt *dhcpmsg.Packet, dest net.IP, broadcast bool) (err error) {
	dstIP := dest
	if dstIP == nil {
		dstIP = net.IPv4bcast
	}

	datagram := ipv4wire.EncodeUDP4(
		pkt.Encode(),
		&net.UDPAddr{IP: net.IPv4zero, Port: udpClientPort},
		&net.UDPAddr{IP: dstIP, Port: udpServerPort},
	)

	_, err = t.conn.WriteTo(datagram, &raw.Addr{HardwareAddr: ipv4wire.BroadcastMAC})

	return errors.Annotate(err, "sending dhcp frame: %w")
}

// ReadPacket blocks for the next inbound datagram addressed to udpClientPort
// and copies its DHCP payload, stripped of its IPv4/UDP envelope, into buf.
// Anything else the raw socket captures -- other protocols, other ports --
// is silently skipped, matching BroadcastRawUDPConn.ReadFrom's behavior.
func (t *RawTransport) ReadPacket(buf []byte) (n int, err error) {
	envelope := make([]byte, ipv4wire.MaxDatagramLen(len(buf)))

	for {
		rn, _, rErr := t.conn.ReadFrom(envelope)
		if rErr != nil {
			return 0, rErr
		}

		payload, ok := ipv4wire.DecodeUDP4(envelope[:rn], udpClientPort)
		if !ok {
			continue
		}

		return copy(buf, payload), nil
	}
}
