// Package ifaceinfo models the per-interface attributes and flags spec.md
// §3 attaches to an Interface, reusing the small bit-twiddling style of
// internal/dhcpd/bitset.go for a fixed three-bit flag set instead of a
// sparse IP-allocation bitmap.
package ifaceinfo

import "net"

// Flags is a set of interface state bits.
type Flags uint8

// Flag bits, matching spec.md §3's "REQUESTED | AUTOMATIC | RUNNING" set.
const (
	// FlagRequested marks an interface named explicitly on the command
	// line.
	FlagRequested Flags = 1 << iota
	// FlagAutomatic marks an interface discovered rather than requested.
	FlagAutomatic
	// FlagRunning marks an interface currently IFF_RUNNING at the OS level.
	FlagRunning
)

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) (ok bool) { return f&want == want }

// Set returns f with want set or cleared.
func (f Flags) Set(want Flags, on bool) (out Flags) {
	if on {
		return f | want
	}

	return f &^ want
}

// Interface is one network device the dhclient process manages.
type Interface struct {
	// Name is the OS-level interface name, e.g. "eth0".
	Name string
	// HWAddr is the interface's hardware (MAC) address.
	HWAddr net.HardwareAddr
	// Index is the OS-level interface index.
	Index int
	// Flags holds the REQUESTED/AUTOMATIC/RUNNING bits.
	Flags Flags
}

// FromNetInterface builds an Interface from a resolved *net.Interface,
// marking it requested or automatic per the caller's discovery path.
func FromNetInterface(ni *net.Interface, requested bool) (iface *Interface) {
	flags := Flags(0)
	if requested {
		flags = flags.Set(FlagRequested, true)
	} else {
		flags = flags.Set(FlagAutomatic, true)
	}

	if ni.Flags&net.FlagRunning != 0 {
		flags = flags.Set(FlagRunning, true)
	}

	return &Interface{
		Name:   ni.Name,
		HWAddr: ni.HardwareAddr,
		Index:  ni.Index,
		Flags:  flags,
	}
}

// Discover resolves every up, non-loopback interface with a hardware
// address, for the "no interfaces named on the command line" case of
// spec.md §6.
func Discover() (ifaces []*Interface, err error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, ni := range all {
		if ni.Flags&net.FlagUp == 0 || ni.Flags&net.FlagLoopback != 0 || len(ni.HardwareAddr) == 0 {
			continue
		}

		ifaces = append(ifaces, FromNetInterface(&ni, false)) //nolint:gosec // G601 -- ni is a fresh copy per loop iteration, not an aliasing hazard under this Go version's semantics.
	}

	return ifaces, nil
}
