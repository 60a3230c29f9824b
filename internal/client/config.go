package client

import (
	"net"
	"time"
)

// Config carries the per-Client tunables spec.md §3 lists as "pointer to
// configuration": retransmission timing, media list, required options, and
// the operational flags a CLI like the one in cmd/dhclient surfaces.
type Config struct {
	// InterfaceName is the name of the network device this Client runs on.
	InterfaceName string
	// HWAddr is the interface's hardware address (chaddr source).
	HWAddr net.HardwareAddr

	// InitialInterval is the first retransmit interval, used whenever the
	// current interval resets to zero.
	InitialInterval time.Duration
	// BackoffCutoff bounds the retransmit interval's growth: once the grown
	// interval exceeds it, the interval is reset to a random value in
	// [BackoffCutoff/2, 3*BackoffCutoff/2].
	BackoffCutoff time.Duration
	// Timeout is the panic-mode deadline measured from first_sending.
	Timeout time.Duration
	// SelectInterval is how long SELECTING waits for offers before
	// committing to the best one seen so far.
	SelectInterval time.Duration
	// RebootTimeout bounds how long REBOOTING waits for an ACK/NAK.
	RebootTimeout time.Duration
	// DeclineWaitTime is the delay between DECLINING and re-entering INIT.
	DeclineWaitTime time.Duration
	// RetryInterval seeds the randomized panic-mode retry delay
	// ([RetryInterval/2, 3*RetryInterval/2)).
	RetryInterval time.Duration

	// RequiredOptions lists option codes an OFFER must carry to be
	// accepted, per spec.md §4.F's offer acceptance filter.
	RequiredOptions []uint8
	// ParameterList is the parameter-request list sent with DISCOVER/REQUEST
	// and used to select which options reach the script runner.
	ParameterList []uint8

	// Media is the medium cycling list of spec.md §4.F; empty disables
	// media cycling.
	Media []string

	// RequestedAddress, if set, is preferred when selecting among offers
	// and is requested explicitly in REBOOTING.
	RequestedAddress net.IP

	// OneTry, if set, makes the client exit (rather than retry) when panic
	// mode or a collision leaves it without a usable lease.
	OneTry bool

	// ICMPTimeout bounds the ICMP echo probe an AddressProber runs before
	// the client binds an offered lease, per spec.md §4.F's address-conflict
	// check. Zero disables probing entirely; Client treats a nil
	// AddressProber (the default if SetAddressProber is never called) the
	// same way.
	ICMPTimeout time.Duration
}

// DefaultConfig returns a Config with the classic dhclient.conf defaults for
// every timing parameter, matching common ISC dhclient installations.
func DefaultConfig() (c *Config) {
	return &Config{
		InitialInterval: 10 * time.Second,
		BackoffCutoff:   120 * time.Second,
		Timeout:         60 * time.Second,
		SelectInterval:  0,
		RebootTimeout:   10 * time.Second,
		DeclineWaitTime: 10 * time.Second,
		RetryInterval:   300 * time.Second,
		ICMPTimeout:     time.Second,
	}
}
