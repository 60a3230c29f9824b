package client_test

import (
	"net"
	"testing"
	"time"

	"github.com/AdguardTeam/dhclient-go/internal/client"
	"github.com/AdguardTeam/dhclient-go/internal/dhcpmsg"
	"github.com/AdguardTeam/dhclient-go/internal/lease"
	"github.com/AdguardTeam/dhclient-go/internal/script"
	"github.com/AdguardTeam/dhclient-go/internal/timer"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records every packet sent.
type fakeTransport struct {
	sent []*dhcpmsg.Packet
}

func (t *fakeTransport) Send(pkt *dhcpmsg.Packet, _ net.IP, _ bool) (err error) {
	t.sent = append(t.sent, pkt)

	return nil
}

func (t *fakeTransport) last() (pkt *dhcpmsg.Packet) {
	if len(t.sent) == 0 {
		return nil
	}

	return t.sent[len(t.sent)-1]
}

// fakeJournal records appended/released leases without touching disk.
type fakeJournal struct {
	appended []*lease.ClientLease
	released []*lease.ClientLease
}

func (j *fakeJournal) AppendLease(_ string, l *lease.ClientLease) (err error) {
	j.appended = append(j.appended, l)

	return nil
}

func (j *fakeJournal) AppendRelease(_ string, l *lease.ClientLease, _ time.Time) (err error) {
	j.released = append(j.released, l)

	return nil
}

func newTestClient(t *testing.T, tweak ...func(*client.Config)) (c *client.Client, tr *fakeTransport, jr *fakeJournal, rn *script.NoopRunner, w *timer.Wheel) {
	t.Helper()

	tr = &fakeTransport{}
	jr = &fakeJournal{}
	rn = &script.NoopRunner{}
	w = timer.New()
	conf := client.DefaultConfig()
	conf.InterfaceName = "eth0"
	conf.HWAddr = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	conf.Timeout = 200 * time.Millisecond
	conf.InitialInterval = 10 * time.Millisecond
	conf.RetryInterval = time.Second

	for _, f := range tweak {
		f(conf)
	}

	c = client.New(conf, tr, jr, rn, w)

	return c, tr, jr, rn, w
}

// offerFor builds a DHCPOFFER in reply to the DISCOVER the client just sent.
func offerFor(t *testing.T, discover *dhcpmsg.Packet, addr net.IP, chaddr net.HardwareAddr) (pkt *dhcpmsg.Packet) {
	t.Helper()

	raw, err := dhcpv4.NewReplyFromRequest(discover.Raw(),
		dhcpv4.WithMessageType(dhcpv4.MessageTypeOffer),
		dhcpv4.WithYourIP(addr),
		dhcpv4.WithOption(dhcpv4.OptServerIdentifier(net.IPv4(192, 168, 1, 1))),
		dhcpv4.WithOption(dhcpv4.OptIPAddressLeaseTime(3600*time.Second)),
		dhcpv4.WithOption(dhcpv4.OptSubnetMask(net.IPv4Mask(255, 255, 255, 0))),
	)
	require.NoError(t, err)
	raw.ClientHWAddr = chaddr

	return dhcpmsg.Wrap(raw)
}

func ackFor(t *testing.T, req *dhcpmsg.Packet, addr net.IP, chaddr net.HardwareAddr) (pkt *dhcpmsg.Packet) {
	t.Helper()

	raw, err := dhcpv4.NewReplyFromRequest(req.Raw(),
		dhcpv4.WithMessageType(dhcpv4.MessageTypeAck),
		dhcpv4.WithYourIP(addr),
		dhcpv4.WithOption(dhcpv4.OptServerIdentifier(net.IPv4(192, 168, 1, 1))),
		dhcpv4.WithOption(dhcpv4.OptIPAddressLeaseTime(3600*time.Second)),
		dhcpv4.WithOption(dhcpv4.OptSubnetMask(net.IPv4Mask(255, 255, 255, 0))),
	)
	require.NoError(t, err)
	raw.ClientHWAddr = chaddr

	return dhcpmsg.Wrap(raw)
}

func nakFor(t *testing.T, req *dhcpmsg.Packet, chaddr net.HardwareAddr) (pkt *dhcpmsg.Packet) {
	t.Helper()

	raw, err := dhcpv4.NewReplyFromRequest(req.Raw(), dhcpv4.WithMessageType(dhcpv4.MessageTypeNak))
	require.NoError(t, err)
	raw.ClientHWAddr = chaddr

	return dhcpmsg.Wrap(raw)
}

func bindFreshLease(t *testing.T, c *client.Client, tr *fakeTransport, now time.Time, addr net.IP) {
	t.Helper()

	c.Start(now)
	discover := tr.last()
	require.NotNil(t, discover)

	offer := offerFor(t, discover, addr, discover.ClientHWAddr())
	c.HandlePacket(now, offer)

	request := tr.last()
	require.NotNil(t, request)

	ack := ackFor(t, request, addr, request.ClientHWAddr())
	c.HandlePacket(now, ack)

	require.Equal(t, "BOUND", c.State().Name())
}

func TestClient_freshDORA(t *testing.T) {
	now := time.Now()
	c, tr, jr, rn, _ := newTestClient(t)

	c.Start(now)
	discover := tr.last()
	require.NotNil(t, discover)
	assert.Equal(t, dhcpv4.MessageTypeDiscover, discover.Raw().MessageType())

	offer := offerFor(t, discover, net.IPv4(192, 0, 2, 50), discover.ClientHWAddr())
	c.HandlePacket(now, offer)

	request := tr.last()
	require.NotNil(t, request)
	assert.Equal(t, dhcpv4.MessageTypeRequest, request.Raw().MessageType())

	ack := ackFor(t, request, net.IPv4(192, 0, 2, 50), discover.ClientHWAddr())
	c.HandlePacket(now, ack)

	assert.Equal(t, "BOUND", c.State().Name())
	require.NotNil(t, c.Active())
	assert.True(t, c.Active().Address.Equal(net.IPv4(192, 0, 2, 50)))
	assert.Len(t, jr.appended, 1)
	assert.Len(t, rn.Calls, 1)
	assert.Equal(t, script.ReasonBound, rn.Calls[0].Reason)
}

func TestClient_renewalThenRebind(t *testing.T) {
	now := time.Now()
	c, tr, _, _, w := newTestClient(t)

	bindFreshLease(t, c, tr, now, net.IPv4(192, 0, 2, 55))
	active := c.Active()
	require.NotNil(t, active)

	// Fire the renewal timer; the client should send a unicast renew.
	w.Fire(active.Renewal)
	assert.Equal(t, "RENEWING", c.State().Name())

	renewReq := tr.last()
	require.NotNil(t, renewReq)
	assert.Equal(t, dhcpv4.MessageTypeRequest, renewReq.Raw().MessageType())

	// No response; fire the timer wheel at the rebind boundary to force the
	// RENEWING->REBINDING transition.
	w.Fire(active.Rebind.Add(time.Millisecond))
	assert.Equal(t, "REBINDING", c.State().Name())

	rebindReq := tr.last()
	require.NotNil(t, rebindReq)
	assert.True(t, rebindReq.Raw().IsBroadcast())

	ack := ackFor(t, rebindReq, net.IPv4(192, 0, 2, 55), rebindReq.ClientHWAddr())
	c.HandlePacket(active.Rebind.Add(time.Millisecond), ack)

	assert.Equal(t, "BOUND", c.State().Name())
}

func TestClient_nakDuringRenewingRestartsDiscovery(t *testing.T) {
	now := time.Now()
	c, tr, _, _, w := newTestClient(t)

	bindFreshLease(t, c, tr, now, net.IPv4(192, 0, 2, 60))
	active := c.Active()

	w.Fire(active.Renewal)
	require.Equal(t, "RENEWING", c.State().Name())

	nak := nakFor(t, tr.last(), tr.last().ClientHWAddr())
	c.HandlePacket(active.Renewal, nak)

	assert.Equal(t, "SELECTING", c.State().Name())
	assert.Nil(t, c.Active())
}

func TestClient_addressCollisionDeclines(t *testing.T) {
	now := time.Now()
	c, tr, _, rn, _ := newTestClient(t)
	rn.Status = 1 // simulate the script reporting a collision

	c.Start(now)
	offer := offerFor(t, tr.last(), net.IPv4(192, 0, 2, 65), tr.last().ClientHWAddr())
	c.HandlePacket(now, offer)
	ack := ackFor(t, tr.last(), net.IPv4(192, 0, 2, 65), tr.last().ClientHWAddr())
	c.HandlePacket(now, ack)

	assert.Equal(t, "DECLINING", c.State().Name())
	assert.Nil(t, c.Active())

	decline := tr.last()
	require.NotNil(t, decline)
	assert.Equal(t, dhcpv4.MessageTypeDecline, decline.Raw().MessageType())
}

func TestClient_release(t *testing.T) {
	now := time.Now()
	c, tr, jr, rn, _ := newTestClient(t)

	bindFreshLease(t, c, tr, now, net.IPv4(192, 0, 2, 70))

	c.Release(now)

	assert.Equal(t, "STOPPED", c.State().Name())
	assert.Nil(t, c.Active())
	require.Len(t, jr.released, 1)
	assert.Equal(t, script.ReasonRelease, rn.Calls[len(rn.Calls)-1].Reason)

	release := tr.last()
	require.NotNil(t, release)
	assert.Equal(t, dhcpv4.MessageTypeRelease, release.Raw().MessageType())
}

func TestClient_panicFallsBackToStoredLease(t *testing.T) {
	now := time.Now()
	c, _, _, _, w := newTestClient(t)

	// Start with no stored leases, so the client enters SELECTING rather
	// than REBOOTING; the fallback lease below simulates one recovered from
	// the journal independently of the reboot path, and is only consulted
	// once panic mode is reached.
	c.Start(now)
	require.Equal(t, "SELECTING", c.State().Name())

	stored := &lease.ClientLease{
		Address: net.IPv4(192, 0, 2, 80),
		Expiry:  now.Add(time.Hour),
		Renewal: now.Add(30 * time.Minute),
		Rebind:  now.Add(45 * time.Minute),
		Options: dhcpv4.Options{},
	}
	c.SeedStoredLeases([]*lease.ClientLease{stored})

	// No offers arrive; fire the wheel past the panic deadline.
	w.Fire(now.Add(2 * time.Second))

	assert.Equal(t, "BOUND", c.State().Name())
	require.NotNil(t, c.Active())
	assert.True(t, c.Active().Address.Equal(stored.Address))
}

func TestClient_panicOneTryExitsWithoutStoredLease(t *testing.T) {
	now := time.Now()
	c, _, _, _, w := newTestClient(t, func(conf *client.Config) { conf.OneTry = true })

	exitCode := -1
	c.SetExitFunc(func(code int) { exitCode = code })

	c.Start(now)
	require.Equal(t, "SELECTING", c.State().Name())

	w.Fire(now.Add(2 * time.Second))

	assert.Equal(t, "STOPPED", c.State().Name())
	assert.Equal(t, 2, exitCode)
}

func TestClient_panicRetriesWhenNotOneTry(t *testing.T) {
	now := time.Now()
	c, _, _, _, w := newTestClient(t)

	c.Start(now)
	require.Equal(t, "SELECTING", c.State().Name())

	w.Fire(now.Add(2 * time.Second))

	// No stored leases and OneTry is false, so the client schedules a
	// retry rather than exiting or getting stuck.
	assert.Equal(t, "SELECTING", c.State().Name())
	assert.Equal(t, 1, w.Len())
}
