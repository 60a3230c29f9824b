package ipv4wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeUDP4_roundTrip(t *testing.T) {
	payload := []byte("a dhcp packet, or close enough for this test")
	src := &net.UDPAddr{IP: net.IPv4zero, Port: 68}
	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: 67}

	datagram := EncodeUDP4(payload, src, dst)

	got, ok := DecodeUDP4(datagram, 67)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestDecodeUDP4_wrongPort(t *testing.T) {
	datagram := EncodeUDP4([]byte("x"), &net.UDPAddr{IP: net.IPv4zero, Port: 68}, &net.UDPAddr{IP: net.IPv4bcast, Port: 67})

	_, ok := DecodeUDP4(datagram, 68)
	assert.False(t, ok)
}

func TestDecodeUDP4_notUDP(t *testing.T) {
	datagram := EncodeUDP4([]byte("x"), &net.UDPAddr{IP: net.IPv4zero, Port: 68}, &net.UDPAddr{IP: net.IPv4bcast, Port: 67})
	datagram[ipProto] = 6 // TCP

	_, ok := DecodeUDP4(datagram, 67)
	assert.False(t, ok)
}

func TestDecodeUDP4_truncated(t *testing.T) {
	_, ok := DecodeUDP4([]byte{1, 2, 3}, 67)
	assert.False(t, ok)
}

func TestDecodeUDP4_ignoresTrailingPadding(t *testing.T) {
	datagram := EncodeUDP4([]byte("payload"), &net.UDPAddr{IP: net.IPv4zero, Port: 68}, &net.UDPAddr{IP: net.IPv4bcast, Port: 67})
	datagram = append(datagram, 0, 0, 0, 0)

	got, ok := DecodeUDP4(datagram, 67)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}
