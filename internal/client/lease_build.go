package client

import (
	"github.com/AdguardTeam/dhclient-go/internal/dhcpmsg"
	"github.com/AdguardTeam/dhclient-go/internal/lease"
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// leaseFromPacket extracts a ClientLease from an OFFER or ACK, leaving the
// time fields zero; callers fill those in separately (applyLeaseTimes for an
// ACK; offers carry no committed times until requested).
func leaseFromPacket(pkt *dhcpmsg.Packet, medium string) (l *lease.ClientLease) {
	raw := pkt.Raw()

	return &lease.ClientLease{
		Address:      pkt.YourIPAddr(),
		NextServer:   raw.ServerIPAddr.To4(),
		Options:      pkt.Options(),
		ServerName:   pkt.ServerName(),
		BootFileName: pkt.BootFileName(),
		IsBootp:      pkt.IsBootp(),
		Medium:       medium,
	}
}

// serverIdentifier returns the DHO_SERVER_IDENTIFIER of l's option set, or
// nil.
func serverIdentifier(l *lease.ClientLease) (id []byte) {
	v, ok := l.Options[dhcpv4.OptionServerIdentifier.Code()]
	if !ok || len(v) != 4 {
		return nil
	}

	return v
}
