package dispatch

import (
	"net"
	"time"

	"github.com/AdguardTeam/dhclient-go/internal/client"
	"github.com/AdguardTeam/golibs/log"
	"github.com/go-ping/ping"
)

var _ client.AddressProber = (*ICMPProber)(nil)

// ICMPProber implements client.AddressProber with a single ICMP echo
// request, grounded directly on AdGuardHome's v4Server.addrAvailable
// (internal/dhcpd/v4.go): same library, same "one ping, privileged,
// no-reply-means-available" shape, run here before the client binds an
// offered lease instead of before a server hands one out.
type ICMPProber struct {
	// Timeout bounds how long Probe waits for an echo reply.
	Timeout time.Duration
}

// Probe sends one privileged ICMP echo request to addr and reports whether
// it went unanswered within p.Timeout.
func (p *ICMPProber) Probe(addr net.IP) (available bool) {
	pinger, err := ping.NewPinger(addr.String())
	if err != nil {
		log.Error("dispatch: ping.NewPinger(%s): %s", addr, err)

		return true
	}

	pinger.SetPrivileged(true)
	pinger.Timeout = p.Timeout
	pinger.Count = 1

	replied := false
	pinger.OnRecv = func(*ping.Packet) { replied = true }

	log.Debug("dispatch: sending icmp echo to %s", addr)

	if err = pinger.Run(); err != nil {
		log.Error("dispatch: pinger.Run(%s): %s", addr, err)

		return true
	}

	if replied {
		log.Info("dispatch: address conflict: %s already answers on the link", addr)

		return false
	}

	return true
}
