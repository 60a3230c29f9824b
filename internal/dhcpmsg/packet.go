// Package dhcpmsg encodes and decodes BOOTP/DHCP datagrams for the client
// core, wrapping github.com/insomniacslk/dhcp/dhcpv4 — the same codec
// AdGuardHome depends on for both its DHCPv4 server (internal/dhcpd/v4.go)
// and its own nclient4 client helper.
package dhcpmsg

import (
	"fmt"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

// BootpMinLen is the minimum length, in bytes, of an outgoing BOOTP/DHCP
// datagram, per spec.md §4.A.
const BootpMinLen = 300

// PacketType is the DHCP message type of a packet, or PacketTypeBootp if the
// packet carries no DHCP message-type option (a plain BOOTREPLY).
type PacketType byte

// PacketTypeBootp indicates the decoded packet had no DHCP message-type
// option, i.e. it is a legacy BOOTP reply.
const PacketTypeBootp PacketType = 0

// Packet wraps a decoded or to-be-encoded DHCPv4 message.
type Packet struct {
	raw *dhcpv4.DHCPv4
}

// Wrap adapts an already-built *dhcpv4.DHCPv4 into a Packet.
func Wrap(raw *dhcpv4.DHCPv4) (p *Packet) {
	return &Packet{raw: raw}
}

// Raw returns the underlying library message.
func (p *Packet) Raw() (raw *dhcpv4.DHCPv4) {
	return p.raw
}

// Decode parses b into a Packet.  Option-overload handling (redirecting
// option parsing into sname/file, per spec.md §4.A) is performed by the
// underlying library during FromBytes.
func Decode(b []byte) (p *Packet, err error) {
	raw, err := dhcpv4.FromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("decoding bootp packet: %w", err)
	}

	return &Packet{raw: raw}, nil
}

// PacketType returns the DHCP message type of p, or PacketTypeBootp if p has
// no DHCP message-type option.
func (p *Packet) PacketType() (t PacketType) {
	mt := p.raw.MessageType()
	if mt == dhcpv4.MessageTypeNone {
		return PacketTypeBootp
	}

	return PacketType(mt)
}

// IsBootp reports whether p carries no DHCP message-type option.
func (p *Packet) IsBootp() (ok bool) {
	return p.PacketType() == PacketTypeBootp
}

// TransactionID returns the packet's xid.
func (p *Packet) TransactionID() (xid dhcpv4.TransactionID) {
	return p.raw.TransactionID
}

// ClientHWAddr returns the chaddr field, trimmed to HWAddrLen bytes.
func (p *Packet) ClientHWAddr() (chaddr []byte) {
	n := int(p.raw.HwAddrLen)
	if n > len(p.raw.ClientHWAddr) {
		n = len(p.raw.ClientHWAddr)
	}

	return p.raw.ClientHWAddr[:n]
}

// Encode serializes p, padding the result to at least BootpMinLen bytes.
func (p *Packet) Encode() (b []byte) {
	b = p.raw.ToBytes()
	if len(b) < BootpMinLen {
		pad := make([]byte, BootpMinLen-len(b))
		b = append(b, pad...)
	}

	return b
}

// SetBroadcastFlag sets or clears the BROADCAST flag, used per spec.md
// §4.A: "set when the interface cannot receive unicast before it is
// configured".
func (p *Packet) SetBroadcastFlag(set bool) {
	p.raw.SetBroadcast()
	if !set {
		p.raw.SetUnicast()
	}
}

// YourIPAddr returns the yiaddr field (the address offered or assigned).
func (p *Packet) YourIPAddr() (ip []byte) {
	return p.raw.YourIPAddr.To4()
}

// ServerIdentifier returns the DHO_SERVER_IDENTIFIER option's value, if
// present.
func (p *Packet) ServerIdentifier() (ip []byte, ok bool) {
	sid := p.raw.ServerIdentifier()
	if sid == nil {
		return nil, false
	}

	return sid.To4(), true
}

// Options returns the raw option set of the packet, honoring any overload
// already folded in by the underlying codec.
func (p *Packet) Options() (opts dhcpv4.Options) {
	return p.raw.Options
}

// ServerName returns the sname field as a string (empty once consumed by
// option overload).
func (p *Packet) ServerName() (name string) {
	return p.raw.ServerHostName
}

// BootFileName returns the file field as a string (empty once consumed by
// option overload).
func (p *Packet) BootFileName() (name string) {
	return p.raw.BootFileName
}
