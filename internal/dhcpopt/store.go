// Package dhcpopt provides a typed, name-addressable option collection on
// top of github.com/insomniacslk/dhcp/dhcpv4, generalized from the teacher's
// config-file option literals (dhcpd/options.go, dhcpd/options_unix.go) to
// the store/lookup/evaluate model spec.md §4.B describes.
package dhcpopt

import (
	"fmt"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// Universe is a namespace for option codes: "dhcp", "dhcpv6", "fqdn", or a
// vendor-specific universe name.
type Universe string

// Well-known universes.
const (
	UniverseDHCP  Universe = "dhcp"
	UniverseFQDN  Universe = "fqdn"
	UniverseAgent Universe = "agent"
)

// Key identifies one option slot.
type Key struct {
	Universe Universe
	Code     uint8
}

// Value is a stored option.  It may be a constant byte string or an
// expression that must be evaluated against a Scope, matching spec.md
// §4.B's "options may be expressions (from the config file) rather than
// constants" note.
type Value interface {
	// Evaluate produces the concrete wire bytes of the option in scope.
	Evaluate(scope Scope) (data []byte, err error)
}

// Scope carries the values an expression Value may need to evaluate itself
// against — the lease currently being considered.
type Scope struct {
	Lease interface{ IPBytes() []byte }
}

// constValue is a Value that ignores its scope.
type constValue struct{ data []byte }

// Evaluate implements Value.
func (c constValue) Evaluate(Scope) (data []byte, err error) { return c.data, nil }

// Const wraps a fixed byte string as a Value.
func Const(data []byte) Value { return constValue{data: data} }

// Store is a keyed map from (universe, code) to a Value.
//
// It is not safe for concurrent use; callers serialize access the way
// client.Client serializes all Client state behind the single dispatcher
// goroutine (spec.md §5).
type Store struct {
	byKey map[Key]Value
	names map[Universe]map[string]uint8
}

// NewStore returns an empty Store.
func NewStore() (s *Store) {
	return &Store{
		byKey: map[Key]Value{},
		names: map[Universe]map[string]uint8{
			UniverseDHCP: dhcpv4NameTable(),
		},
	}
}

// Save stores val under key, replacing whatever was there.
func (s *Store) Save(key Key, val Value) {
	s.byKey[key] = val
}

// Lookup returns the Value stored under key, if any.
func (s *Store) Lookup(key Key) (val Value, ok bool) {
	val, ok = s.byKey[key]

	return val, ok
}

// Evaluate looks up key and evaluates it against scope.  It returns
// (nil, false, nil) if the option is not present.
func (s *Store) Evaluate(key Key, scope Scope) (data []byte, ok bool, err error) {
	val, ok := s.byKey[key]
	if !ok {
		return nil, false, nil
	}

	data, err = val.Evaluate(scope)
	if err != nil {
		return nil, true, fmt.Errorf("evaluating %+v: %w", key, err)
	}

	return data, true, nil
}

// Iterate calls f for every key stored in universe, in unspecified order.
// Iteration stops early if f returns false.
func (s *Store) Iterate(universe Universe, f func(code uint8, val Value) (cont bool)) {
	for k, v := range s.byKey {
		if k.Universe != universe {
			continue
		}

		if !f(k.Code, v) {
			return
		}
	}
}

// CanonicalName returns the dash-free, underscore-joined canonical name used
// by the script-runner environment for a (universe, code) pair, per spec.md
// §6: "unknown-universe options prefixed by the universe name".
func (s *Store) CanonicalName(key Key) (name string) {
	names := s.names[key.Universe]
	for n, code := range names {
		if code == key.Code {
			return strings.ReplaceAll(n, "-", "_")
		}
	}

	if key.Universe == UniverseDHCP {
		return fmt.Sprintf("option_%d", key.Code)
	}

	return fmt.Sprintf("%s_option_%d", key.Universe, key.Code)
}

// FromDHCPv4 imports every option present in opts into the store's "dhcp"
// universe as constant Values.
func (s *Store) FromDHCPv4(opts dhcpv4.Options) {
	for code, data := range opts {
		s.Save(Key{Universe: UniverseDHCP, Code: code}, Const(data))
	}
}

// dhcpv4NameTable builds the option-code-to-canonical-name table for the
// "dhcp" universe from the small set of options spec.md §4.E names
// explicitly; it is deliberately not exhaustive of RFC 2132 — names beyond
// this set fall back to the "option_<code>" form above, same as an unknown
// vendor option would.
func dhcpv4NameTable() map[string]uint8 {
	return map[string]uint8{
		"subnet-mask":        byte(dhcpv4.OptionSubnetMask.Code()),
		"routers":            byte(dhcpv4.OptionRouter.Code()),
		"domain-name-servers": byte(dhcpv4.OptionDomainNameServer.Code()),
		"domain-name":        byte(dhcpv4.OptionDomainName.Code()),
		"host-name":          byte(dhcpv4.OptionHostName.Code()),
		"broadcast-address":  byte(dhcpv4.OptionBroadcastAddress.Code()),
		"dhcp-lease-time":    byte(dhcpv4.OptionIPAddressLeaseTime.Code()),
		"dhcp-renewal-time":  byte(dhcpv4.OptionRenewTimeValue.Code()),
		"dhcp-rebinding-time": byte(dhcpv4.OptionRebindingTimeValue.Code()),
		"dhcp-server-identifier": byte(dhcpv4.OptionServerIdentifier.Code()),
		"dhcp-message-type":  byte(dhcpv4.OptionDHCPMessageType.Code()),
	}
}

// ErrUnknownType is returned by ParseLiteral for an unrecognized type tag.
var ErrUnknownType = errors.Error("unknown option type")
