package script

import (
	"encoding/binary"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/AdguardTeam/dhclient-go/internal/dhcpopt"
	"github.com/AdguardTeam/dhclient-go/internal/lease"
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// Prefix is one of the four environment-variable prefixes spec.md §4.E
// names for IPv4.
type Prefix string

// Prefixes.
const (
	PrefixOld       Prefix = "old_"
	PrefixNew       Prefix = "new_"
	PrefixAlias     Prefix = "alias_"
	PrefixRequested Prefix = "requested_"
)

// shellSafe matches the character set spec.md §4.E deems shell-safe: values
// built only from these runes are passed through to the child environment
// unmodified.
var shellSafe = regexp.MustCompile(`^[a-zA-Z0-9.,:;=@#%_+/-]*$`)

// domainLabel matches one label of a domain name per spec.md §4.E: length
// 1-63, alphanumerics plus '-'/'_', no leading/trailing '-'/'_'.
var domainLabel = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,61}[a-zA-Z0-9])?$`)

// ValidateDomainName reports whether s is a sequence of valid labels
// (optionally with a trailing dot), per spec.md §4.E.
func ValidateDomainName(s string) (ok bool) {
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return false
	}

	for _, label := range strings.Split(s, ".") {
		if !domainLabel.MatchString(label) {
			return false
		}
	}

	return true
}

// sanitizeValue returns v if it is shell-safe, else an empty string, per
// spec.md §4.E: "only character sets deemed shell-safe pass through".
func sanitizeValue(v string) (safe string) {
	if shellSafe.MatchString(v) {
		return v
	}

	return ""
}

// LeaseVars builds the set of "<prefix><key>=<value>" entries for one
// lease, deriving option-derived variables from paramList (the configured
// parameter-request list) and computed fields from the lease itself.
func LeaseVars(prefix Prefix, l *lease.ClientLease, store *dhcpopt.Store, paramList []uint8) (vars map[string]string) {
	vars = map[string]string{}
	if l == nil {
		return vars
	}

	set := func(key, val string) {
		val = sanitizeValue(val)
		if val == "" {
			return
		}

		vars[string(prefix)+key] = val
	}

	set("ip_address", l.Address.String())
	if len(l.NextServer) > 0 {
		set("next_server", l.NextServer.String())
	}
	if l.BootFileName != "" {
		set("filename", l.BootFileName)
	}
	if l.ServerName != "" {
		set("server_name", l.ServerName)
	}
	set("expiry", fmt.Sprintf("%d", l.Expiry.Unix()))

	if mask, ok := l.Options[dhcpv4.OptionSubnetMask.Code()]; ok && len(mask) == 4 {
		set("subnet_mask", net.IP(mask).String())

		if network, bcast, nErr := networkAndBroadcast(l.Address, mask); nErr == nil {
			set("network_number", network.String())
			set("broadcast_address", bcast.String())
		}
	}

	// paramList restricts which additional options are surfaced to the
	// script, per spec.md §4.E's "configured parameter-request list".
	requested := map[dhcpv4.GenericOptionCode]bool{}
	for _, code := range paramList {
		requested[dhcpv4.GenericOptionCode(code)] = true
	}

	for code, data := range l.Options {
		if len(requested) > 0 && !requested[code] {
			continue
		}

		name := store.CanonicalName(dhcpopt.Key{Universe: dhcpopt.UniverseDHCP, Code: uint8(code)})
		set(name, renderOptionValue(code, data))
	}

	return vars
}

// renderOptionValue renders an option's raw bytes as a value suitable for
// the environment; IP-shaped options are dotted-quad, everything else is
// treated as opaque text.
func renderOptionValue(code dhcpv4.GenericOptionCode, data []byte) (s string) {
	if len(data) == 4 {
		switch code {
		case dhcpv4.OptionSubnetMask, dhcpv4.OptionRouter, dhcpv4.OptionBroadcastAddress,
			dhcpv4.OptionServerIdentifier:
			return net.IP(data).String()
		}
	}

	return string(data)
}

// networkAndBroadcast computes the network and broadcast addresses of addr
// under mask, grounded on the big.Int range arithmetic of
// internal/dhcpd/iprange.go, narrowed to plain uint32 since this is always
// IPv4.
func networkAndBroadcast(addr net.IP, mask net.IP) (network, broadcast net.IP, err error) {
	a4 := addr.To4()
	m4 := mask.To4()
	if a4 == nil || m4 == nil {
		return nil, nil, fmt.Errorf("not ipv4 addresses")
	}

	aInt := binary.BigEndian.Uint32(a4)
	mInt := binary.BigEndian.Uint32(m4)

	netInt := aInt & mInt
	bcastInt := aInt | ^mInt

	network = make(net.IP, 4)
	broadcast = make(net.IP, 4)
	binary.BigEndian.PutUint32(network, netInt)
	binary.BigEndian.PutUint32(broadcast, bcastInt)

	return network, broadcast, nil
}

// BuildEnv assembles the full Env for one script invocation, given the old
// (previous active), new, and alias leases, matching spec.md §4.E's
// {old_,new_,alias_,requested_} matrix. Any lease may be nil; alias is the
// statically configured lease loaded alongside the dynamic ones (see
// leasedb's IsStatic leases), present on every invocation regardless of
// reason, matching dhclient.conf's "alias" stanza.
func BuildEnv(reason Reason, ifaceName, medium string, oldLease, newLease, alias *lease.ClientLease, store *dhcpopt.Store, paramList []uint8) (env Env) {
	vars := map[string]string{}

	for k, v := range LeaseVars(PrefixOld, oldLease, store, paramList) {
		vars[k] = v
	}
	for k, v := range LeaseVars(PrefixNew, newLease, store, paramList) {
		vars[k] = v
	}
	for k, v := range LeaseVars(PrefixAlias, alias, store, paramList) {
		vars[k] = v
	}

	return Env{
		Reason:    reason,
		Interface: ifaceName,
		Medium:    medium,
		Vars:      vars,
	}
}

// BuildRequestedEnv builds the environment for a reason whose outcome isn't
// known yet -- TIMEOUT, while the client is still waiting on a response to
// the REQUEST it sent -- exposing "requested_*" for the lease being
// asked for instead of "new_*", plus "alias_*" as usual.
func BuildRequestedEnv(reason Reason, ifaceName, medium string, requested, alias *lease.ClientLease, store *dhcpopt.Store, paramList []uint8) (env Env) {
	vars := map[string]string{}

	for k, v := range LeaseVars(PrefixRequested, requested, store, paramList) {
		vars[k] = v
	}
	for k, v := range LeaseVars(PrefixAlias, alias, store, paramList) {
		vars[k] = v
	}

	return Env{
		Reason:    reason,
		Interface: ifaceName,
		Medium:    medium,
		Vars:      vars,
	}
}
