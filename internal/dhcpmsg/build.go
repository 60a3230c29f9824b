package dhcpmsg

import (
	"fmt"
	"net"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

// DiscoverParams carries the fields NewDiscover needs to build a DHCPDISCOVER,
// matching the INIT-state entry action of spec.md §4.F.
type DiscoverParams struct {
	ChAddr          net.HardwareAddr
	TransactionID   dhcpv4.TransactionID
	RequestedAddr   net.IP
	ParameterList   []dhcpv4.OptionCode
	Hostname        string
	Broadcast       bool
}

// NewDiscover builds a DHCPDISCOVER packet.
func NewDiscover(p DiscoverParams) (pkt *Packet, err error) {
	mods := []dhcpv4.Modifier{
		dhcpv4.WithTransactionID(p.TransactionID),
	}
	if p.Broadcast {
		mods = append(mods, dhcpv4.WithBroadcast(true))
	}
	if len(p.ParameterList) > 0 {
		mods = append(mods, dhcpv4.WithRequestedOptions(p.ParameterList...))
	}
	if p.RequestedAddr != nil {
		mods = append(mods, dhcpv4.WithOption(dhcpv4.OptRequestedIPAddress(p.RequestedAddr)))
	}
	if p.Hostname != "" {
		mods = append(mods, dhcpv4.WithOption(dhcpv4.OptHostName(p.Hostname)))
	}

	raw, err := dhcpv4.NewDiscovery(p.ChAddr, mods...)
	if err != nil {
		return nil, fmt.Errorf("building discover: %w", err)
	}

	return &Packet{raw: raw}, nil
}

// RequestParams carries the fields NewRequest needs, covering both the
// SELECTING->REQUESTING transition (server identifier known, ciaddr empty),
// the RENEWING/REBINDING cases (ciaddr populated, no server identifier
// broadcasted), and REBOOTING (requested address set, ciaddr empty).
type RequestParams struct {
	ChAddr         net.HardwareAddr
	TransactionID  dhcpv4.TransactionID
	RequestedAddr  net.IP
	ServerID       net.IP
	ClientIP       net.IP
	ParameterList  []dhcpv4.OptionCode
	Broadcast      bool
}

// NewRequest builds a DHCPREQUEST packet.
func NewRequest(p RequestParams) (pkt *Packet, err error) {
	mods := []dhcpv4.Modifier{
		dhcpv4.WithTransactionID(p.TransactionID),
	}
	if p.Broadcast {
		mods = append(mods, dhcpv4.WithBroadcast(true))
	}
	if len(p.ParameterList) > 0 {
		mods = append(mods, dhcpv4.WithRequestedOptions(p.ParameterList...))
	}
	if p.RequestedAddr != nil {
		mods = append(mods, dhcpv4.WithOption(dhcpv4.OptRequestedIPAddress(p.RequestedAddr)))
	}
	if p.ServerID != nil {
		mods = append(mods, dhcpv4.WithOption(dhcpv4.OptServerIdentifier(p.ServerID)))
	}
	if p.ClientIP != nil {
		mods = append(mods, dhcpv4.WithClientIP(p.ClientIP))
	}

	raw, err := dhcpv4.NewMessage(mods...)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	raw.OpCode = dhcpv4.OpcodeBootRequest
	raw.ClientHWAddr = p.ChAddr
	raw.HwAddrLen = uint8(len(p.ChAddr))
	raw.Options.Update(dhcpv4.OptMessageType(dhcpv4.MessageTypeRequest))

	return &Packet{raw: raw}, nil
}

// NewDecline builds a DHCPDECLINE packet for the address the client is
// rejecting due to a collision (spec.md §4.F DECLINING state).
func NewDecline(chAddr net.HardwareAddr, xid dhcpv4.TransactionID, declinedAddr, serverID net.IP) (pkt *Packet, err error) {
	raw, err := dhcpv4.NewMessage(
		dhcpv4.WithTransactionID(xid),
	)
	if err != nil {
		return nil, fmt.Errorf("building decline: %w", err)
	}
	raw.OpCode = dhcpv4.OpcodeBootRequest
	raw.ClientHWAddr = chAddr
	raw.HwAddrLen = uint8(len(chAddr))
	raw.Options.Update(dhcpv4.OptMessageType(dhcpv4.MessageTypeDecline))
	raw.Options.Update(dhcpv4.OptRequestedIPAddress(declinedAddr))
	if serverID != nil {
		raw.Options.Update(dhcpv4.OptServerIdentifier(serverID))
	}

	return &Packet{raw: raw}, nil
}

// NewRelease builds a DHCPRELEASE packet for the client's active lease
// (spec.md §4.F "Release").
func NewRelease(chAddr net.HardwareAddr, xid dhcpv4.TransactionID, clientIP, serverID net.IP) (pkt *Packet, err error) {
	raw, err := dhcpv4.NewMessage(
		dhcpv4.WithTransactionID(xid),
		dhcpv4.WithClientIP(clientIP),
	)
	if err != nil {
		return nil, fmt.Errorf("building release: %w", err)
	}
	raw.OpCode = dhcpv4.OpcodeBootRequest
	raw.ClientHWAddr = chAddr
	raw.HwAddrLen = uint8(len(chAddr))
	raw.Options.Update(dhcpv4.OptMessageType(dhcpv4.MessageTypeRelease))
	if serverID != nil {
		raw.Options.Update(dhcpv4.OptServerIdentifier(serverID))
	}

	return &Packet{raw: raw}, nil
}
