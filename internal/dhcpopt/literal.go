package dhcpopt

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

// The aliases for option value literals, as they would appear in a journal's
// "option <name> <value>;" statement or a config-file option override.
const (
	hexTyp  = "hex"
	ipTyp   = "ip"
	ipsTyp  = "ips"
	textTyp = "text"
)

func parseHex(s string) (data []byte, err error) {
	data, err = hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding hex: %w", err)
	}

	return data, nil
}

func parseIP(s string) (data []byte, err error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, errors.Error("invalid ip")
	}

	if ip4 := ip.To4(); ip4 != nil {
		return ip4, nil
	}

	return ip, nil
}

func parseIPs(s string) (data []byte, err error) {
	for i, part := range strings.Split(s, ",") {
		var ip []byte
		ip, err = parseIP(part)
		if err != nil {
			return nil, fmt.Errorf("parsing ip at index %d: %w", i, err)
		}

		data = append(data, ip...)
	}

	return data, nil
}

// ParseLiteral parses a "<type> <value>" pair as it appears after an option
// code in a journal "option" statement, producing a constant Value.
//
// Recognized types are hex, ip, ips, and text, matching the teacher's
// parseDHCPOption* family.
func ParseLiteral(typ, val string) (v Value, err error) {
	var data []byte
	switch typ {
	case hexTyp:
		data, err = parseHex(val)
	case ipTyp:
		data, err = parseIP(val)
	case ipsTyp:
		data, err = parseIPs(val)
	case textTyp:
		data = []byte(val)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	if err != nil {
		return nil, err
	}

	return Const(data), nil
}

// ParseOptionStatement parses a whole "<code> <type> <value>" triple, as
// found in a journal "option" statement's right-hand side.
func ParseOptionStatement(s string) (code uint8, v Value, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), " ", 3)
	if len(parts) < 3 {
		return 0, nil, errors.Error("need at least three fields")
	}

	code64, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return 0, nil, fmt.Errorf("parsing option code: %w", err)
	}

	v, err = ParseLiteral(parts[1], parts[2])
	if err != nil {
		return 0, nil, fmt.Errorf("parsing option %d: %w", code64, err)
	}

	return uint8(code64), v, nil
}
