// Package ipv4wire builds and parses the bare IPv4/UDP envelope this client
// wraps every BOOTP/DHCP datagram in before its interface has an address of
// its own to bind a normal net.UDPConn to (spec.md §4.G). There are no IP
// options, no fragmentation, and exactly one transport protocol (UDP), so
// this is a fixed 20-byte IPv4 header over an 8-byte UDP header rather than
// a general-purpose codec.
//
// The header layout and the RFC 1071/768 checksum folding are grounded on
// the IPv4/UDP field codec AdGuardHome vendors in internal/dhcpd/nclient4
// (itself lifted from gVisor); trimmed here to the fields a DHCP client
// actually sets (no TOS, ID, or fragmentation) and restructured as two free
// functions operating on whole datagrams instead of a byte-slice type with
// header-field accessors, since nothing in this module needs to address an
// IPv4 header's fields individually once it's built.
//
// This file contains header-layout and checksum logic derived from gVisor.
//
// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package ipv4wire

import (
	"encoding/binary"
	"net"
)

// Byte offsets into a fixed 20-byte IPv4 header.
const (
	ipVersIHL  = 0
	ipTotalLen = 2
	ipTTL      = 8
	ipProto    = 9
	ipChecksum = 10
	ipSrcAddr  = 12
	ipDstAddr  = 16

	ipHeaderLen = 20

	// ipMaxHeaderLen bounds the header length an incoming packet may claim;
	// IHL is 4 bits of 32-bit words, so 15*4 is the largest value a
	// conforming sender can set.
	ipMaxHeaderLen = 60
)

// Byte offsets into the 8-byte UDP header that follows.
const (
	udpSrcPort  = 0
	udpDstPort  = 2
	udpLength   = 4
	udpChecksum = 6

	udpHeaderLen = 8
)

// ProtoUDP is IPv4's protocol number for UDP, RFC 790.
const ProtoUDP = 17

// MaxDatagramLen is the largest envelope DecodeUDP4 needs to be handed for a
// payload of at most payloadLen bytes: worst-case IP header plus the fixed
// UDP header plus the payload itself.
func MaxDatagramLen(payloadLen int) int {
	return ipMaxHeaderLen + udpHeaderLen + payloadLen
}

// BroadcastMAC is the Ethernet broadcast address. A raw.Addr built from it
// is the destination every send uses: this client has no ARP
// implementation to resolve a unicast next hop for an address it doesn't
// own yet (see DESIGN.md).
var BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// EncodeUDP4 wraps payload in a minimal IPv4/UDP datagram from src to dst,
// with both header checksums filled in.
func EncodeUDP4(payload []byte, src, dst *net.UDPAddr) (datagram []byte) {
	udpLen := udpHeaderLen + len(payload)
	total := ipHeaderLen + udpLen

	buf := make([]byte, total)

	buf[ipVersIHL] = (4 << 4) | (ipHeaderLen / 4)
	binary.BigEndian.PutUint16(buf[ipTotalLen:], uint16(total))
	buf[ipTTL] = 64 // RFC 1700's recommended default.
	buf[ipProto] = ProtoUDP
	copy(buf[ipSrcAddr:ipSrcAddr+4], src.IP.To4())
	copy(buf[ipDstAddr:ipDstAddr+4], dst.IP.To4())
	binary.BigEndian.PutUint16(buf[ipChecksum:], ^checksum(buf[:ipHeaderLen], 0))

	udp := buf[ipHeaderLen:]
	binary.BigEndian.PutUint16(udp[udpSrcPort:], uint16(src.Port))
	binary.BigEndian.PutUint16(udp[udpDstPort:], uint16(dst.Port))
	binary.BigEndian.PutUint16(udp[udpLength:], uint16(udpLen))
	copy(udp[udpHeaderLen:], payload)

	// UDP's checksum runs over the pseudo-header (src/dst addrs, zero byte,
	// protocol, length), then the real header (with the checksum field
	// still zero) and payload. The length is folded in twice by
	// construction -- once as part of the pseudo-header, once as part of
	// the header itself -- per RFC 768.
	lenBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBytes, uint16(udpLen))

	xsum := checksum(payload, pseudoHeaderChecksum(src.IP, dst.IP))
	xsum = checksum(lenBytes, xsum)
	xsum = checksum(udp[:udpHeaderLen], xsum)
	binary.BigEndian.PutUint16(udp[udpChecksum:], ^xsum)

	return buf
}

// DecodeUDP4 parses an IPv4 datagram captured off a raw socket and, if it is
// a UDP packet addressed to wantPort, returns its payload. IP options (a
// header longer than the fixed 20 bytes) are skipped over, not parsed; the
// UDP checksum is not verified, matching what a DHCP client needs to trust
// from its own link.
func DecodeUDP4(datagram []byte, wantPort int) (payload []byte, ok bool) {
	if len(datagram) < ipHeaderLen {
		return nil, false
	}

	ihl := int(datagram[ipVersIHL]&0x0f) * 4
	if ihl < ipHeaderLen || len(datagram) < ihl+udpHeaderLen {
		return nil, false
	}

	if datagram[ipProto] != ProtoUDP {
		return nil, false
	}

	total := int(binary.BigEndian.Uint16(datagram[ipTotalLen:]))
	if total > len(datagram) {
		// The declared total length bounds the payload, so any padding after
		// it is ignored; a declared length beyond the captured bytes is
		// clamped to what was captured.
		total = len(datagram)
	}

	udp := datagram[ihl:]
	if int(binary.BigEndian.Uint16(udp[udpDstPort:])) != wantPort {
		return nil, false
	}

	payloadLen := total - ihl - udpHeaderLen
	if payloadLen < 0 || ihl+udpHeaderLen+payloadLen > len(datagram) {
		return nil, false
	}

	return datagram[ihl+udpHeaderLen : ihl+udpHeaderLen+payloadLen], true
}

func checksum(buf []byte, initial uint16) uint16 {
	v := uint32(initial)

	l := len(buf)
	if l&1 != 0 {
		l--
		v += uint32(buf[l]) << 8
	}

	for i := 0; i < l; i += 2 {
		v += (uint32(buf[i]) << 8) + uint32(buf[i+1])
	}

	return checksumCombine(uint16(v), uint16(v>>16))
}

func checksumCombine(a, b uint16) uint16 {
	v := uint32(a) + uint32(b)

	return uint16(v + v>>16)
}

func pseudoHeaderChecksum(srcAddr, dstAddr net.IP) uint16 {
	xsum := checksum(srcAddr.To4(), 0)
	xsum = checksum(dstAddr.To4(), xsum)

	return checksum([]byte{0, ProtoUDP}, xsum)
}
