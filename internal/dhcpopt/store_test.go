package dhcpopt_test

import (
	"testing"

	"github.com/AdguardTeam/dhclient-go/internal/dhcpopt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLiteral(t *testing.T) {
	testCases := []struct {
		name       string
		typ        string
		val        string
		want       []byte
		wantErrMsg string
	}{{
		name: "hex_success",
		typ:  "hex",
		val:  "736f636b73",
		want: []byte("socks"),
	}, {
		name: "ip_success",
		typ:  "ip",
		val:  "192.168.1.1",
		want: []byte{192, 168, 1, 1},
	}, {
		name: "ips_success",
		typ:  "ips",
		val:  "192.168.1.1,192.168.1.2",
		want: []byte{192, 168, 1, 1, 192, 168, 1, 2},
	}, {
		name: "text_success",
		typ:  "text",
		val:  "http://192.168.1.1/wpad.dat",
		want: []byte("http://192.168.1.1/wpad.dat"),
	}, {
		name:       "ip_error",
		typ:        "ip",
		val:        "not-an-ip",
		wantErrMsg: "invalid ip",
	}, {
		name:       "bad_type",
		typ:        "nope",
		val:        "x",
		wantErrMsg: `unknown option type: "nope"`,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := dhcpopt.ParseLiteral(tc.typ, tc.val)
			if tc.wantErrMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErrMsg)

				return
			}

			require.NoError(t, err)
			data, err := v.Evaluate(dhcpopt.Scope{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, data)
		})
	}
}

func TestStore_saveLookupEvaluate(t *testing.T) {
	s := dhcpopt.NewStore()
	key := dhcpopt.Key{Universe: dhcpopt.UniverseDHCP, Code: 252}

	_, ok := s.Lookup(key)
	assert.False(t, ok)

	s.Save(key, dhcpopt.Const([]byte("hello")))

	v, ok := s.Lookup(key)
	require.True(t, ok)

	data, err := v.Evaluate(dhcpopt.Scope{})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	data, ok, err = s.Evaluate(key, dhcpopt.Scope{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data)

	_, ok, err = s.Evaluate(dhcpopt.Key{Universe: dhcpopt.UniverseDHCP, Code: 1}, dhcpopt.Scope{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_iterate(t *testing.T) {
	s := dhcpopt.NewStore()
	s.Save(dhcpopt.Key{Universe: dhcpopt.UniverseDHCP, Code: 1}, dhcpopt.Const([]byte{1}))
	s.Save(dhcpopt.Key{Universe: dhcpopt.UniverseDHCP, Code: 2}, dhcpopt.Const([]byte{2}))
	s.Save(dhcpopt.Key{Universe: dhcpopt.UniverseFQDN, Code: 1}, dhcpopt.Const([]byte{3}))

	var codes []uint8
	s.Iterate(dhcpopt.UniverseDHCP, func(code uint8, _ dhcpopt.Value) bool {
		codes = append(codes, code)

		return true
	})

	assert.ElementsMatch(t, []uint8{1, 2}, codes)
}
