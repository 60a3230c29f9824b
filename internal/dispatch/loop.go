package dispatch

import (
	"bytes"
	"context"
	"time"

	"github.com/AdguardTeam/dhclient-go/internal/client"
	"github.com/AdguardTeam/dhclient-go/internal/dhcpmsg"
	"github.com/AdguardTeam/dhclient-go/internal/timer"
	"github.com/AdguardTeam/golibs/log"
)

// readBufSize is generous for a DHCP datagram; DHCP options rarely approach
// it.
const readBufSize = 2048

// defaultPoll bounds how long Run blocks on ReadFrom when no timer is
// pending, so ctx cancellation is still observed promptly.
const defaultPoll = time.Second

// Loop is the single-threaded dispatcher of spec.md §4.G: it owns the
// socket wait, decodes inbound packets, matches them against hwAddr, and
// delivers both packets and timer fires into a client.Client, none of which
// block on I/O themselves.
//
// Grounded on the receive-loop shape of the nclient4 Client's receiveLoop
// (internal/dhcpd/nclient4/client.go in the teacher tree, since deleted in
// favor of this redesign; see DESIGN.md), restructured so the wait always
// includes the nearest timer deadline rather than blocking indefinitely on
// the socket alone.
type Loop struct {
	transport *RawTransport
	cl        *client.Client
	timers    *timer.Wheel
	hwAddr    []byte
}

// NewLoop builds a Loop for one client, interface, and timer wheel.
func NewLoop(transport *RawTransport, cl *client.Client, timers *timer.Wheel, hwAddr []byte) (l *Loop) {
	return &Loop{transport: transport, cl: cl, timers: timers, hwAddr: hwAddr}
}

// Run drives the dispatch loop until ctx is canceled.
func (l *Loop) Run(ctx context.Context) (err error) {
	l.cl.Start(time.Now())

	buf := make([]byte, readBufSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		deadline := time.Now().Add(defaultPoll)
		if when, ok := l.timers.Next(); ok && when.Before(deadline) {
			deadline = when
		}

		if setErr := l.transport.SetReadDeadline(deadline); setErr != nil {
			return setErr
		}

		n, readErr := l.transport.ReadPacket(buf)

		now := time.Now()
		l.timers.Fire(now)

		if readErr != nil {
			if isTimeout(readErr) {
				continue
			}

			return readErr
		}

		pkt, ok := l.decode(buf[:n])
		if !ok {
			continue
		}

		l.cl.HandlePacket(now, pkt)
	}
}

// decode parses a DHCP payload already stripped of its IPv4/UDP envelope by
// RawTransport.ReadPacket, accepting only packets addressed to our own
// client hardware address.
func (l *Loop) decode(payload []byte) (pkt *dhcpmsg.Packet, ok bool) {
	p, err := dhcpmsg.Decode(payload)
	if err != nil {
		log.Debug("dispatch: decoding dhcp packet: %s", err)

		return nil, false
	}

	if len(l.hwAddr) > 0 && !bytes.Equal(p.ClientHWAddr(), l.hwAddr) {
		return nil, false
	}

	return p, true
}

func isTimeout(err error) (ok bool) {
	type timeouter interface{ Timeout() bool }

	t, is := err.(timeouter)

	return is && t.Timeout()
}
