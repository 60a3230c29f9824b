package script_test

import (
	"net"
	"testing"
	"time"

	"github.com/AdguardTeam/dhclient-go/internal/dhcpopt"
	"github.com/AdguardTeam/dhclient-go/internal/lease"
	"github.com/AdguardTeam/dhclient-go/internal/script"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/stretchr/testify/assert"
)

func TestValidateDomainName(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want bool
	}{
		{name: "success", in: "example.com", want: true},
		{name: "success_trailing_dot", in: "example.com.", want: true},
		{name: "success_underscore", in: "my_device_01", want: true},
		{name: "bad_leading_dash", in: "-bad.local", want: false},
		{name: "bad_empty_label", in: "bad..local", want: false},
		{name: "bad_empty", in: "", want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, script.ValidateDomainName(tc.in))
		})
	}
}

func TestLeaseVars_computedFields(t *testing.T) {
	store := dhcpopt.NewStore()

	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	l := &lease.ClientLease{
		Address: net.ParseIP("192.0.2.50").To4(),
		Expiry:  base.Add(600 * time.Second),
		Options: dhcpv4.Options{
			dhcpv4.OptionSubnetMask.Code(): net.ParseIP("255.255.255.0").To4(),
		},
	}

	vars := script.LeaseVars(script.PrefixNew, l, store, nil)

	assert.Equal(t, "192.0.2.50", vars["new_ip_address"])
	assert.Equal(t, "255.255.255.0", vars["new_subnet_mask"])
	assert.Equal(t, "192.0.2.0", vars["new_network_number"])
	assert.Equal(t, "192.0.2.255", vars["new_broadcast_address"])
	assert.NotEmpty(t, vars["new_expiry"])
}

func TestLeaseVars_nilLease(t *testing.T) {
	store := dhcpopt.NewStore()
	vars := script.LeaseVars(script.PrefixOld, nil, store, nil)
	assert.Empty(t, vars)
}

func TestBuildEnv_oldAndNewPrefixes(t *testing.T) {
	store := dhcpopt.NewStore()

	oldL := &lease.ClientLease{Address: net.ParseIP("192.0.2.10").To4(), Options: dhcpv4.Options{}}
	newL := &lease.ClientLease{Address: net.ParseIP("192.0.2.11").To4(), Options: dhcpv4.Options{}}

	env := script.BuildEnv(script.ReasonBound, "eth0", "", oldL, newL, nil, store, nil)

	assert.Equal(t, script.ReasonBound, env.Reason)
	assert.Equal(t, "192.0.2.10", env.Vars["old_ip_address"])
	assert.Equal(t, "192.0.2.11", env.Vars["new_ip_address"])
}

func TestBuildEnv_aliasPrefix(t *testing.T) {
	store := dhcpopt.NewStore()

	alias := &lease.ClientLease{Address: net.ParseIP("192.0.2.20").To4(), IsStatic: true, Options: dhcpv4.Options{}}

	env := script.BuildEnv(script.ReasonBound, "eth0", "", nil, nil, alias, store, nil)

	assert.Equal(t, "192.0.2.20", env.Vars["alias_ip_address"])
}

func TestBuildRequestedEnv_requestedAndAliasPrefixes(t *testing.T) {
	store := dhcpopt.NewStore()

	requested := &lease.ClientLease{Address: net.ParseIP("192.0.2.30").To4(), Options: dhcpv4.Options{}}
	alias := &lease.ClientLease{Address: net.ParseIP("192.0.2.40").To4(), IsStatic: true, Options: dhcpv4.Options{}}

	env := script.BuildRequestedEnv(script.ReasonTimeout, "eth0", "", requested, alias, store, nil)

	assert.Equal(t, script.ReasonTimeout, env.Reason)
	assert.Equal(t, "192.0.2.30", env.Vars["requested_ip_address"])
	assert.Equal(t, "192.0.2.40", env.Vars["alias_ip_address"])
}
