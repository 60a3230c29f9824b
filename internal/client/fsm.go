package client

import (
	"context"
	"net"
	"time"

	"github.com/AdguardTeam/dhclient-go/internal/dhcpmsg"
	"github.com/AdguardTeam/dhclient-go/internal/lease"
	"github.com/AdguardTeam/dhclient-go/internal/script"
	"github.com/AdguardTeam/golibs/log"
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// Start enters the client's first state: REBOOTING if a non-expired stored
// lease exists (INIT-REBOOT, per spec.md §4.F), else INIT.
func (c *Client) Start(now time.Time) {
	if remembered := c.stored.Head(); remembered != nil && !remembered.Expired(now) {
		c.enterRebooting(now, remembered)

		return
	}

	c.enterInit(now)
}

// SeedStoredLeases installs the leases recovered from the journal at
// startup, most-recently-appended first. A static lease among them (see
// leasedb's IsStatic) becomes the alias lease surfaced as "alias_*" on every
// script invocation, matching dhclient.conf's "alias" stanza.
func (c *Client) SeedStoredLeases(leases []*lease.ClientLease) {
	c.stored.Clear()
	for i := len(leases) - 1; i >= 0; i-- {
		l := leases[i]
		c.stored.PushFront(l)

		if l.IsStatic && c.alias == nil {
			c.alias = l
		}
	}
}

// AdoptActive installs l as the active lease without running discovery,
// for callers (such as a "release and exit" CLI invocation) that need to
// release a previously obtained lease without first re-acquiring it.
func (c *Client) AdoptActive(l *lease.ClientLease) {
	c.active = l
}

func (c *Client) currentMedium() (medium string) {
	if len(c.conf.Media) == 0 {
		return ""
	}

	return c.conf.Media[c.mediumIdx%len(c.conf.Media)]
}

// enterInit (re)starts discovery from scratch: clears offers, resets
// backoff, and sends the first DISCOVER.
func (c *Client) enterInit(now time.Time) {
	c.state = StateInit
	c.offered.Clear()
	c.interval = 0
	c.firstSending = now
	c.dest = net.IPv4bcast
	c.broadcast = true

	c.state = StateSelecting
	log.Debug("dhclient(%s): entering SELECTING", c.conf.InterfaceName)

	c.sendDiscover(now)
}

func (c *Client) sendDiscover(now time.Time) {
	c.xid = c.newXID()

	pkt, err := dhcpmsg.NewDiscover(dhcpmsg.DiscoverParams{
		ChAddr:        c.conf.HWAddr,
		TransactionID: c.xid,
		RequestedAddr: c.conf.RequestedAddress,
		ParameterList: toOptionCodes(c.conf.ParameterList),
		Broadcast:     true,
	})
	if err != nil {
		log.Error("dhclient(%s): building discover: %s", c.conf.InterfaceName, err)

		return
	}

	_ = c.transport.Send(pkt, net.IPv4bcast, true)

	c.scheduleRetransmit(now, c.onSelectingTimeout)
}

// onSelectingTimeout fires either the select-interval expiry (commit to the
// best offer seen so far) or a bare retransmit, and ultimately the panic
// deadline, all from the same timer purpose since only one of these is ever
// pending for a given client.
func (c *Client) onSelectingTimeout(now time.Time) {
	if _, ok := c.state.(stateSelecting); !ok {
		return
	}

	if now.After(c.panicDeadline()) {
		c.enterPanic(now)

		return
	}

	if best := c.bestOffer(); best != nil && now.Sub(c.firstSending) >= c.conf.SelectInterval {
		c.enterRequesting(now, best)

		return
	}

	if len(c.conf.Media) > 0 {
		c.mediumIdx++
	}

	c.sendDiscover(now)
}

// bestOffer returns the preferred offer: one matching RequestedAddress if
// present, else the first (earliest-received) offer satisfying
// RequiredOptions, per spec.md §4.F's offer acceptance filter.
func (c *Client) bestOffer() (best *lease.ClientLease) {
	for _, o := range c.offered.Slice() {
		if !hasRequiredOptions(o, c.conf.RequiredOptions) {
			continue
		}

		if c.conf.RequestedAddress != nil && o.Address.Equal(c.conf.RequestedAddress) {
			return o
		}

		if best == nil {
			best = o
		}
	}

	return best
}

func hasRequiredOptions(l *lease.ClientLease, required []uint8) (ok bool) {
	for _, code := range required {
		if _, present := l.Options[dhcpv4.GenericOptionCode(code)]; !present {
			return false
		}
	}

	return true
}

// HandlePacket routes a decoded packet, whose chaddr the transport has
// already matched, to the current state's handler.  Packets whose
// transaction ID is not the client's current xid are dropped here.
func (c *Client) HandlePacket(now time.Time, pkt *dhcpmsg.Packet) {
	if pkt.TransactionID() != c.xid {
		return
	}

	switch c.state.(type) {
	case stateSelecting:
		c.onOffer(now, pkt)
	case stateRequesting, stateRebooting, stateRenewing, stateRebinding:
		c.onAckOrNak(now, pkt)
	}
}

func (c *Client) onOffer(now time.Time, pkt *dhcpmsg.Packet) {
	if pkt.PacketType() != dhcpmsg.PacketType(dhcpv4.MessageTypeOffer) && !pkt.IsBootp() {
		return
	}

	l := leaseFromPacket(pkt, c.currentMedium())
	for _, rejected := range c.rejectList {
		if l.Address.String() == rejected {
			return
		}
	}

	c.offered.PushBack(l)

	if now.Sub(c.firstSending) >= c.conf.SelectInterval {
		if best := c.bestOffer(); best != nil {
			c.enterRequesting(now, best)
		}
	}
}

func (c *Client) enterRequesting(now time.Time, chosen *lease.ClientLease) {
	c.timers.CancelKey(c.key("retransmit"))
	c.state = stateRequesting{chosen: chosen}
	c.interval = 0
	c.firstSending = now

	log.Debug("dhclient(%s): entering REQUESTING for %s", c.conf.InterfaceName, chosen.Address)

	c.sendRequest(now)
}

func (c *Client) sendRequest(now time.Time) {
	st, ok := c.state.(stateRequesting)
	if !ok {
		return
	}

	pkt, err := dhcpmsg.NewRequest(dhcpmsg.RequestParams{
		ChAddr:        c.conf.HWAddr,
		TransactionID: c.xid,
		RequestedAddr: st.chosen.Address,
		ServerID:      serverIdentifier(st.chosen),
		ParameterList: toOptionCodes(c.conf.ParameterList),
		Broadcast:     true,
	})
	if err != nil {
		log.Error("dhclient(%s): building request: %s", c.conf.InterfaceName, err)

		return
	}

	_ = c.transport.Send(pkt, net.IPv4bcast, true)

	c.scheduleRetransmit(now, c.onRequestingTimeout)
}

func (c *Client) onRequestingTimeout(now time.Time) {
	if _, ok := c.state.(stateRequesting); !ok {
		return
	}

	if now.After(c.panicDeadline()) {
		c.enterPanic(now)

		return
	}

	c.sendRequest(now)
}

// onAckOrNak handles a DHCPACK/DHCPNAK common to REQUESTING, REBOOTING,
// RENEWING, and REBINDING: a NAK always returns the client to INIT,
// regardless of which of those states it arrived in.
func (c *Client) onAckOrNak(now time.Time, pkt *dhcpmsg.Packet) {
	switch pkt.PacketType() {
	case dhcpmsg.PacketType(dhcpv4.MessageTypeAck):
		c.onAck(now, pkt)
	case dhcpmsg.PacketType(dhcpv4.MessageTypeNak):
		c.onNak(now)
	}
}

// rejectServer adds the offered address to the per-interface reject list, so
// onOffer's filter drops any future offer of that address, whichever server
// sends it.  The server's own address is not recorded.
func (c *Client) rejectServer(l *lease.ClientLease) {
	c.rejectList = append(c.rejectList, l.Address.String())
}

func (c *Client) onAck(now time.Time, pkt *dhcpmsg.Packet) {
	l := leaseFromPacket(pkt, c.currentMedium())
	if !applyLeaseTimes(l, now, c.rnd) {
		log.Error("dhclient(%s): ack with missing or zero lease time, rejecting", c.conf.InterfaceName)

		c.rejectServer(l)
		c.timers.Schedule(now.Add(500*time.Millisecond), c.key("retransmit"), func(t time.Time) { c.enterInit(t) })

		return
	}

	if err := l.Validate(); err != nil {
		log.Error("dhclient(%s): invalid lease times, discarding ack: %s", c.conf.InterfaceName, err)

		return
	}

	if c.prober != nil && !c.prober.Probe(l.Address) {
		log.Error("dhclient(%s): %s already answers on the link, declining", c.conf.InterfaceName, l.Address)

		c.enterDeclining(now, l)

		return
	}

	prev := c.active
	c.stored.RemoveMatchingDynamic(l.Address)
	c.stored.PushFront(l)
	c.active = l
	c.offered.Clear()

	if err := c.journal.AppendLease(c.conf.InterfaceName, l); err != nil {
		log.Error("dhclient(%s): journaling lease: %s", c.conf.InterfaceName, err)
	}

	reason := script.ReasonBound
	switch c.state.(type) {
	case stateRenewing:
		reason = script.ReasonRenew
	case stateRebinding:
		reason = script.ReasonRebind
	case stateRebooting:
		reason = script.ReasonReboot
	}

	env := script.BuildEnv(reason, c.conf.InterfaceName, l.Medium, prev, l, c.alias, c.opts, c.conf.ParameterList)
	status, err := c.runner.Run(context.Background(), env)
	if err != nil {
		log.Error("dhclient(%s): running script: %s", c.conf.InterfaceName, err)
	}
	if status != 0 {
		c.enterDeclining(now, l)

		return
	}

	c.enterBound(now, l)
}

func (c *Client) onNak(now time.Time) {
	log.Info("dhclient(%s): received NAK, restarting discovery", c.conf.InterfaceName)

	c.active = nil
	c.enterInit(now)
}

func (c *Client) enterBound(now time.Time, active *lease.ClientLease) {
	c.timers.CancelKey(c.key("retransmit"))
	c.state = stateBound{active: active}
	c.interval = 0

	c.timers.Schedule(active.Renewal, c.key("retransmit"), func(t time.Time) { c.onRenewalDue(t) })

	log.Info("dhclient(%s): bound to %s", c.conf.InterfaceName, active.Address)
}

func (c *Client) onRenewalDue(now time.Time) {
	st, ok := c.state.(stateBound)
	if !ok {
		return
	}

	c.enterRenewing(now, st.active)
}

func (c *Client) enterRenewing(now time.Time, active *lease.ClientLease) {
	c.state = stateRenewing{active: active}
	c.interval = 0
	c.firstSending = now

	log.Debug("dhclient(%s): entering RENEWING", c.conf.InterfaceName)

	c.sendRenew(now)
}

func (c *Client) sendRenew(now time.Time) {
	st, ok := c.state.(stateRenewing)
	if !ok {
		return
	}

	c.xid = c.newXID()

	pkt, err := dhcpmsg.NewRequest(dhcpmsg.RequestParams{
		ChAddr:        c.conf.HWAddr,
		TransactionID: c.xid,
		ClientIP:      st.active.Address,
		ParameterList: toOptionCodes(c.conf.ParameterList),
		Broadcast:     false,
	})
	if err != nil {
		log.Error("dhclient(%s): building renew request: %s", c.conf.InterfaceName, err)

		return
	}

	dest := net.IP(serverIdentifier(st.active))
	if dest == nil {
		dest = net.IPv4bcast
	}

	_ = c.transport.Send(pkt, dest, false)

	delay := c.renewalRetransmitDelay(now, st.active)
	c.timers.Schedule(now.Add(delay), c.key("retransmit"), func(t time.Time) { c.onRenewingTimeout(t) })
}

// renewalRetransmitDelay backs off within RENEWING/REBINDING but never past
// the next phase boundary (Rebind for RENEWING, Expiry for REBINDING).
func (c *Client) renewalRetransmitDelay(now time.Time, active *lease.ClientLease) (d time.Duration) {
	c.interval = c.nextInterval()
	d = c.interval

	var boundary time.Time
	switch c.state.(type) {
	case stateRenewing:
		boundary = active.Rebind
	case stateRebinding:
		boundary = active.Expiry
	default:
		return d
	}

	if remaining := boundary.Sub(now); remaining < d {
		if remaining < 0 {
			remaining = 0
		}

		d = remaining
	}

	return d
}

func (c *Client) onRenewingTimeout(now time.Time) {
	st, ok := c.state.(stateRenewing)
	if !ok {
		return
	}

	if !now.Before(st.active.Rebind) {
		c.enterRebinding(now, st.active)

		return
	}

	c.sendRenew(now)
}

func (c *Client) enterRebinding(now time.Time, active *lease.ClientLease) {
	c.state = stateRebinding{active: active}

	log.Debug("dhclient(%s): entering REBINDING", c.conf.InterfaceName)

	c.sendRebind(now)
}

func (c *Client) sendRebind(now time.Time) {
	st, ok := c.state.(stateRebinding)
	if !ok {
		return
	}

	c.xid = c.newXID()

	pkt, err := dhcpmsg.NewRequest(dhcpmsg.RequestParams{
		ChAddr:        c.conf.HWAddr,
		TransactionID: c.xid,
		ClientIP:      st.active.Address,
		ParameterList: toOptionCodes(c.conf.ParameterList),
		Broadcast:     true,
	})
	if err != nil {
		log.Error("dhclient(%s): building rebind request: %s", c.conf.InterfaceName, err)

		return
	}

	_ = c.transport.Send(pkt, net.IPv4bcast, true)

	delay := c.renewalRetransmitDelay(now, st.active)
	c.timers.Schedule(now.Add(delay), c.key("retransmit"), func(t time.Time) { c.onRebindingTimeout(t) })
}

func (c *Client) onRebindingTimeout(now time.Time) {
	st, ok := c.state.(stateRebinding)
	if !ok {
		return
	}

	if !now.Before(st.active.Expiry) {
		log.Info("dhclient(%s): lease expired, restarting discovery", c.conf.InterfaceName)
		c.active = nil
		c.enterInit(now)

		return
	}

	c.sendRebind(now)
}

func (c *Client) enterRebooting(now time.Time, remembered *lease.ClientLease) {
	c.state = stateRebooting{remembered: remembered}
	c.interval = 0
	c.firstSending = now

	log.Debug("dhclient(%s): entering REBOOTING for %s", c.conf.InterfaceName, remembered.Address)

	c.sendReboot(now)
}

func (c *Client) sendReboot(now time.Time) {
	st, ok := c.state.(stateRebooting)
	if !ok {
		return
	}

	c.xid = c.newXID()

	pkt, err := dhcpmsg.NewRequest(dhcpmsg.RequestParams{
		ChAddr:        c.conf.HWAddr,
		TransactionID: c.xid,
		RequestedAddr: st.remembered.Address,
		ParameterList: toOptionCodes(c.conf.ParameterList),
		Broadcast:     true,
	})
	if err != nil {
		log.Error("dhclient(%s): building reboot request: %s", c.conf.InterfaceName, err)

		return
	}

	_ = c.transport.Send(pkt, net.IPv4bcast, true)

	c.scheduleRetransmit(now, c.onRebootingTimeout)
}

func (c *Client) onRebootingTimeout(now time.Time) {
	if _, ok := c.state.(stateRebooting); !ok {
		return
	}

	if now.Sub(c.firstSending) >= c.conf.RebootTimeout {
		log.Debug("dhclient(%s): reboot timed out, falling back to SELECTING", c.conf.InterfaceName)
		c.enterInit(now)

		return
	}

	c.sendReboot(now)
}

// enterDeclining sends a DECLINE for an address the script runner rejected
// (e.g. an ARP collision it detected), per spec.md §4.F DECLINING state.
func (c *Client) enterDeclining(now time.Time, declined *lease.ClientLease) {
	c.state = stateDeclining{declined: declined}
	c.rejectList = append(c.rejectList, declined.Address.String())
	c.stored.RemoveMatchingDynamic(declined.Address)
	c.active = nil

	pkt, err := dhcpmsg.NewDecline(c.conf.HWAddr, c.xid, declined.Address, serverIdentifier(declined))
	if err == nil {
		_ = c.transport.Send(pkt, net.IPv4bcast, true)
	}

	log.Info("dhclient(%s): declining %s", c.conf.InterfaceName, declined.Address)

	if c.conf.OneTry {
		c.state = StateStopped
		c.onExit(2)

		return
	}

	c.timers.Schedule(now.Add(c.conf.DeclineWaitTime), c.key("retransmit"), func(t time.Time) { c.enterInit(t) })
}

// enterPanic handles the "no response" timeout from SELECTING or REQUESTING
// (REBOOTING falls back to INIT on its own timeout instead): fall back to the best stored lease if one is usable, else
// retry (or exit, under -1), per spec.md §4.F panic mode.
func (c *Client) enterPanic(now time.Time) {
	log.Info("dhclient(%s): entering panic mode, no server responded", c.conf.InterfaceName)

	var requested *lease.ClientLease
	switch st := c.state.(type) {
	case stateRequesting:
		requested = st.chosen
	case stateRebooting:
		requested = st.remembered
	}

	env := script.BuildRequestedEnv(script.ReasonTimeout, c.conf.InterfaceName, c.currentMedium(), requested, c.alias, c.opts, c.conf.ParameterList)
	_, _ = c.runner.Run(context.Background(), env)

	for _, candidate := range c.stored.Slice() {
		if candidate.Expired(now) {
			continue
		}

		c.active = candidate
		c.enterBound(now, candidate)

		return
	}

	if c.conf.OneTry {
		c.state = StateStopped
		c.onExit(2)

		return
	}

	delay := c.conf.RetryInterval/2 + time.Duration(c.rnd.Int63n(int64(c.conf.RetryInterval)+1))
	c.timers.Schedule(now.Add(delay), c.key("retransmit"), func(t time.Time) { c.enterInit(t) })
}

// Release sends DHCPRELEASE for the active lease, journals the release, and
// enters STOPPED, per spec.md §4.F "Release".
func (c *Client) Release(now time.Time) {
	c.timers.CancelKey(c.key("retransmit"))

	if c.active != nil {
		pkt, err := dhcpmsg.NewRelease(c.conf.HWAddr, c.newXID(), c.active.Address, serverIdentifier(c.active))
		if err == nil {
			dest := c.active.NextServer
			if dest == nil {
				dest = net.IPv4bcast
			}

			_ = c.transport.Send(pkt, dest, dest.Equal(net.IPv4bcast))
		}

		if err := c.journal.AppendRelease(c.conf.InterfaceName, c.active, now); err != nil {
			log.Error("dhclient(%s): journaling release: %s", c.conf.InterfaceName, err)
		}

		env := script.BuildEnv(script.ReasonRelease, c.conf.InterfaceName, c.active.Medium, c.active, nil, c.alias, c.opts, c.conf.ParameterList)
		_, _ = c.runner.Run(context.Background(), env)
	}

	c.active = nil
	c.state = StateStopped
}

// scheduleRetransmit schedules cb at now + the next backoff interval, under
// the retransmit purpose key shared by every in-progress exchange so that a
// stale retransmit from a superseded state can never fire.
func (c *Client) scheduleRetransmit(now time.Time, cb func(time.Time)) {
	c.interval = c.nextInterval()
	c.timers.Schedule(now.Add(c.interval).Add(c.jitterMicros()), c.key("retransmit"), cb)
}

func toOptionCodes(codes []uint8) (out []dhcpv4.OptionCode) {
	for _, b := range codes {
		out = append(out, dhcpv4.GenericOptionCode(b))
	}

	return out
}
