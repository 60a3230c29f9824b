package client

import "github.com/AdguardTeam/dhclient-go/internal/lease"

// State is one of the closed set of protocol states of spec.md §4.F. It is
// a sum type: each concrete state carries exactly the payload its own
// invariants require, per the Design Note in spec.md §9 ("make illegal
// transitions unrepresentable") — the lease a state depends on travels in
// the state's own payload.  Client also keeps an active-lease pointer
// (Client.active) for release and for old_* script variables.
type State interface {
	// Name returns the state's constant name, for logging.
	Name() string

	isState()
}

type stateInit struct{}

func (stateInit) Name() string { return "INIT" }
func (stateInit) isState()     {}

// StateInit is the stateless INIT state.
var StateInit State = stateInit{}

type stateSelecting struct{}

func (stateSelecting) Name() string { return "SELECTING" }
func (stateSelecting) isState()     {}

// StateSelecting is the stateless SELECTING state; the offers being
// collected live in Client.offered, not in the state value, since they
// accumulate across repeated OFFER deliveries rather than being fixed at
// entry.
var StateSelecting State = stateSelecting{}

// stateRequesting carries the offer the client committed to and is now
// requesting.
type stateRequesting struct {
	chosen *lease.ClientLease
}

func (stateRequesting) Name() string { return "REQUESTING" }
func (stateRequesting) isState()     {}

// stateRebooting carries the remembered lease the client is trying to
// reacquire.
type stateRebooting struct {
	remembered *lease.ClientLease
}

func (stateRebooting) Name() string { return "REBOOTING" }
func (stateRebooting) isState()     {}

// stateBound carries the installed lease.
type stateBound struct {
	active *lease.ClientLease
}

func (stateBound) Name() string { return "BOUND" }
func (stateBound) isState()     {}

// stateRenewing carries the lease being renewed (unicast to the server
// identifier).
type stateRenewing struct {
	active *lease.ClientLease
}

func (stateRenewing) Name() string { return "RENEWING" }
func (stateRenewing) isState()     {}

// stateRebinding carries the lease being rebound (broadcast).
type stateRebinding struct {
	active *lease.ClientLease
}

func (stateRebinding) Name() string { return "REBINDING" }
func (stateRebinding) isState()     {}

type stateStopped struct{}

func (stateStopped) Name() string { return "STOPPED" }
func (stateStopped) isState()     {}

// StateStopped is the terminal state reached via do_release or shutdown.
var StateStopped State = stateStopped{}

// stateDeclining carries the address being declined.
type stateDeclining struct {
	declined *lease.ClientLease
}

func (stateDeclining) Name() string { return "DECLINING" }
func (stateDeclining) isState()     {}
