// Package lease defines the in-memory lease model shared by the client
// state machine and the lease journal, grounded on the Lease type of
// internal/dhcpd/dhcpd.go (Expiry/Hostname/HWAddr/IP, Clone, IsStatic)
// generalized to the richer ClientLease of spec.md §3.
package lease

import (
	"net"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// MaxAbsTime is the clamp value for absolute-seconds time fields on
// overflow, per spec.md §3's invariant: "an overflow during arithmetic is
// clamped to the maximum representable positive value". time.Time's own
// range comfortably exceeds any real lease horizon, so a fixed far-future
// sentinel serves as "the maximum representable positive value" in
// practice.
var MaxAbsTime = time.Date(9999, time.January, 1, 0, 0, 0, 0, time.UTC)

// ClientLease is one DHCPv4 lease as held by a Client.
type ClientLease struct {
	// Address is the leased IPv4 address.
	Address net.IP
	// NextServer is siaddr, the next-server address from the ACK/OFFER.
	NextServer net.IP
	// Options is the fully parsed option set from the ACK/OFFER, retained
	// verbatim for the script runner's environment builder.
	Options dhcpv4.Options
	// ServerName is sname, if present.
	ServerName string
	// BootFileName is file, if present.
	BootFileName string
	// IsBootp marks a lease synthesized from a BOOTREPLY with no DHCP
	// options.
	IsBootp bool
	// IsStatic marks a lease that originated from static configuration,
	// never from a server.  Static leases are never destroyed by routine
	// replacement (spec.md §3).
	IsStatic bool
	// Medium is the medium tag active when this lease was obtained.
	Medium string

	// Expiry, Renewal (T1), and Rebind (T2) are absolute wall-clock
	// seconds.  The invariant Renewal <= Rebind <= Expiry must hold for
	// every committed lease.
	Expiry  time.Time
	Renewal time.Time
	Rebind  time.Time

	// Next links to the next lease in a singly linked stored-leases list.
	Next *ClientLease
}

// ErrBadTimes is returned by Validate when the ordering invariant is
// violated.
var ErrBadTimes = errors.Error("renewal must be <= rebind <= expiry")

// Validate checks l's Renewal <= Rebind <= Expiry invariant.
func (l *ClientLease) Validate() (err error) {
	if l.Renewal.After(l.Rebind) || l.Rebind.After(l.Expiry) {
		return ErrBadTimes
	}

	return nil
}

// Clone returns a deep copy of l with Next set to nil.
func (l *ClientLease) Clone() (c *ClientLease) {
	if l == nil {
		return nil
	}

	opts := dhcpv4.Options{}
	for k, v := range l.Options {
		cp := make([]byte, len(v))
		copy(cp, v)
		opts[k] = cp
	}

	return &ClientLease{
		Address:      cloneIP(l.Address),
		NextServer:   cloneIP(l.NextServer),
		Options:      opts,
		ServerName:   l.ServerName,
		BootFileName: l.BootFileName,
		IsBootp:      l.IsBootp,
		IsStatic:     l.IsStatic,
		Medium:       l.Medium,
		Expiry:       l.Expiry,
		Renewal:      l.Renewal,
		Rebind:       l.Rebind,
	}
}

func cloneIP(ip net.IP) (c net.IP) {
	if ip == nil {
		return nil
	}

	c = make(net.IP, len(ip))
	copy(c, ip)

	return c
}

// ClampAbs clamps t to MaxAbsTime if computing it overflowed into the past
// (a negative offset wrapped around), per spec.md §3.
func ClampAbs(t time.Time) (clamped time.Time) {
	if t.Before(time.Unix(0, 0)) {
		return MaxAbsTime
	}

	return t
}

// Expired reports whether l's lease has expired as of now.
func (l *ClientLease) Expired(now time.Time) (ok bool) {
	return l != nil && now.After(l.Expiry)
}

// List is a singly linked list of leases, used for the offered-leases and
// stored-leases lists of spec.md §3.
type List struct {
	head *ClientLease
}

// PushFront inserts l at the head of the list.
func (ls *List) PushFront(l *ClientLease) {
	l.Next = ls.head
	ls.head = l
}

// PushBack appends l at the tail of the list.
func (ls *List) PushBack(l *ClientLease) {
	l.Next = nil
	if ls.head == nil {
		ls.head = l

		return
	}

	cur := ls.head
	for cur.Next != nil {
		cur = cur.Next
	}
	cur.Next = l
}

// Head returns the first lease, or nil if the list is empty.
func (ls *List) Head() (l *ClientLease) { return ls.head }

// Clear empties the list.
func (ls *List) Clear() { ls.head = nil }

// Slice returns the list's elements as a slice, in order.
func (ls *List) Slice() (out []*ClientLease) {
	for cur := ls.head; cur != nil; cur = cur.Next {
		out = append(out, cur)
	}

	return out
}

// RemoveMatchingDynamic removes every non-static lease for the given
// address.  Static (fallback) leases are never removed: they are moved to
// the tail of the list, behind the remaining dynamic leases, in their
// original order.
func (ls *List) RemoveMatchingDynamic(addr net.IP) {
	var kept, static []*ClientLease
	for cur := ls.head; cur != nil; cur = cur.Next {
		switch {
		case cur.IsStatic:
			static = append(static, cur)
		case !cur.Address.Equal(addr):
			kept = append(kept, cur)
		}
	}

	ls.head = nil
	for _, l := range append(kept, static...) {
		ls.PushBack(l)
	}
}
