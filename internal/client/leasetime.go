package client

import (
	"time"

	"github.com/AdguardTeam/dhclient-go/internal/lease"
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// applyLeaseTimes fills in l.Expiry/Renewal/Rebind from the ACK's lease-time,
// renewal-time (T1), and rebinding-time (T2) options, per spec.md §4.F's
// "Lease-time computation". It reports false if DHO_LEASE_TIME is absent or
// zero -- a protocol violation the caller must treat as a rejected offer
// rather than bind, per spec.md §7.
func applyLeaseTimes(l *lease.ClientLease, now time.Time, rnd randSource) (ok bool) {
	raw, present := l.Options[dhcpv4.OptionIPAddressLeaseTime.Code()]
	if !present {
		return false
	}

	leaseSecs := uint64(dhcpv4.GetUint32(raw))
	if leaseSecs == 0 {
		return false
	}

	renewSecs := leaseSecs/2 + 1
	if raw, has := l.Options[dhcpv4.OptionRenewTimeValue.Code()]; has {
		renewSecs = uint64(dhcpv4.GetUint32(raw))
	}

	rebindSecs := leaseSecs * 7 / 8
	if raw, has := l.Options[dhcpv4.OptionRebindingTimeValue.Code()]; has {
		rebindSecs = uint64(dhcpv4.GetUint32(raw))
	}

	// Randomize renewal -- whether it came from an explicit T1 or the
	// expiry/2+1 default -- to avoid every client on a subnet renewing in
	// lockstep: renewal <- (3*renewal+3)/4 + (rand() mod renewal+3)/4.
	lo := (3*renewSecs + 3) / 4
	renewSecs = lo + uint64(rnd.Int63n(int64(renewSecs)+3))/4

	// An overflow past rebind is clamped to rebind*3/4, not to rebind
	// itself.
	if renewSecs > rebindSecs {
		renewSecs = rebindSecs * 3 / 4
	}

	l.Expiry = lease.ClampAbs(now.Add(time.Duration(leaseSecs) * time.Second))
	l.Renewal = lease.ClampAbs(now.Add(time.Duration(renewSecs) * time.Second))
	l.Rebind = lease.ClampAbs(now.Add(time.Duration(rebindSecs) * time.Second))

	if l.Rebind.After(l.Expiry) {
		l.Rebind = l.Expiry
	}

	return true
}

// randSource is the subset of *rand.Rand the lease-time computation needs, narrowed to an interface so tests can supply a
// deterministic sequence.
type randSource interface {
	Int63n(n int64) int64
}
