package dispatch

import (
	"testing"

	"github.com/AdguardTeam/dhclient-go/internal/dhcpmsg"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_decodeAcceptsOwnHWAddr(t *testing.T) {
	hwAddr := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	l := &Loop{hwAddr: hwAddr}

	raw, err := dhcpv4.NewDiscovery(hwAddr)
	require.NoError(t, err)

	pkt, ok := l.decode(dhcpmsg.Wrap(raw).Encode())
	require.True(t, ok)
	assert.Equal(t, hwAddr, []byte(pkt.ClientHWAddr()))
}

func TestLoop_decodeRejectsOtherHWAddr(t *testing.T) {
	l := &Loop{hwAddr: []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}}

	raw, err := dhcpv4.NewDiscovery([]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})
	require.NoError(t, err)

	_, ok := l.decode(dhcpmsg.Wrap(raw).Encode())
	assert.False(t, ok)
}

func TestLoop_decodeRejectsGarbage(t *testing.T) {
	l := &Loop{hwAddr: []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}}

	_, ok := l.decode([]byte{0x01, 0x02, 0x03})
	assert.False(t, ok)
}
