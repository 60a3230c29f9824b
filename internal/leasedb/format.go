package leasedb

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/AdguardTeam/dhclient-go/internal/lease"
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// formatTime renders t in UTC in the journal's "W Y/M/D H:M:S" form, per
// spec.md §4.D (the weekday is RFC-2131-era dhclient convention; it is parsed
// back but not otherwise significant).  parseTime reads the result as UTC.
func formatTime(t time.Time) (s string) {
	t = t.UTC()

	return fmt.Sprintf("%d %04d/%02d/%02d %02d:%02d:%02d",
		int(t.Weekday()), t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}

func parseTime(s string) (t time.Time, err error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return time.Time{}, fmt.Errorf("malformed timestamp %q", s)
	}

	// fields[0] is the weekday digit; it is redundant with the date and is
	// not used to reconstruct t.
	datePart := fields[1]
	timePart := fields[2]

	return time.Parse("2006/01/02 15:04:05", datePart+" "+timePart)
}

// formatLease renders l as a "lease { ... }" statement.
func formatLease(ifaceName string, l *lease.ClientLease) (s string) {
	var b strings.Builder

	b.WriteString("lease {\n")
	fmt.Fprintf(&b, "  interface %q;\n", ifaceName)
	fmt.Fprintf(&b, "  fixed-address %s;\n", ip4String(l.Address))

	if l.IsBootp {
		b.WriteString("  bootp;\n")
	}
	if l.BootFileName != "" {
		fmt.Fprintf(&b, "  filename %q;\n", l.BootFileName)
	}
	if l.ServerName != "" {
		fmt.Fprintf(&b, "  server-name %q;\n", l.ServerName)
	}
	if l.Medium != "" {
		fmt.Fprintf(&b, "  medium %q;\n", l.Medium)
	}

	for code, data := range l.Options {
		fmt.Fprintf(&b, "  option %d hex %s;\n", code, hex.EncodeToString(data))
	}

	fmt.Fprintf(&b, "  renew %s;\n", formatTime(l.Renewal))
	fmt.Fprintf(&b, "  rebind %s;\n", formatTime(l.Rebind))
	fmt.Fprintf(&b, "  expire %s;\n", formatTime(l.Expiry))
	b.WriteString("}\n")

	return b.String()
}

func formatDUID(duid []byte) (s string) {
	return fmt.Sprintf("default-duid %s;\n", hex.EncodeToString(duid))
}

// parseDUIDStatement reads a single "default-duid <hex>;" statement.
func parseDUIDStatement(r *bufio.Reader) (rest *bufio.Reader, duid []byte, err error) {
	tok := newTokenizer(r)
	for {
		word, ok := tok.next()
		if !ok {
			return r, nil, io.EOF
		}

		if word != "default-duid" {
			continue
		}

		val, ok := tok.next()
		if !ok {
			return r, nil, fmt.Errorf("truncated default-duid statement")
		}
		val = strings.TrimSuffix(val, ";")
		val = strings.Trim(val, `"`)

		duid, err = hex.DecodeString(val)
		if err != nil {
			return r, nil, fmt.Errorf("decoding duid: %w", err)
		}

		return r, duid, nil
	}
}

// parseJournal parses the full textual grammar of spec.md §4.D: a sequence
// of "default-duid", "lease { ... }", and "lease6 { ... }" statements. lease6
// blocks are skipped (this client never writes them, but must not choke on a
// journal shared with a DHCPv6 companion client).
func parseJournal(r io.Reader) (leases []*lease.ClientLease, duid []byte, err error) {
	tok := newTokenizer(bufio.NewReader(r))

	for {
		word, ok := tok.next()
		if !ok {
			return leases, duid, nil
		}

		switch word {
		case "default-duid":
			val, ok := tok.next()
			if !ok {
				return nil, nil, fmt.Errorf("truncated default-duid statement")
			}
			val = strings.TrimSuffix(val, ";")
			val = strings.Trim(val, `"`)

			duid, err = hex.DecodeString(val)
			if err != nil {
				return nil, nil, fmt.Errorf("decoding duid: %w", err)
			}
		case "lease":
			l, pErr := parseLeaseBlock(tok)
			if pErr != nil {
				return nil, nil, fmt.Errorf("parsing lease block: %w", pErr)
			}

			leases = append(leases, l)
		case "lease6":
			err = skipBlock(tok)
			if err != nil {
				return nil, nil, fmt.Errorf("skipping lease6 block: %w", err)
			}
		default:
			return nil, nil, fmt.Errorf("unexpected token %q", word)
		}
	}
}

// parseLeaseBlock parses a "lease { ... }" statement after the "lease"
// keyword: it reads the opening brace itself, then the body up to the
// closing brace.
func parseLeaseBlock(tok *tokenizer) (l *lease.ClientLease, err error) {
	brace, ok := tok.next()
	if !ok || brace != "{" {
		return nil, fmt.Errorf("expected '{' after lease")
	}

	l = &lease.ClientLease{Options: dhcpv4.Options{}}

	for {
		word, ok := tok.next()
		if !ok {
			return nil, fmt.Errorf("truncated lease block")
		}
		if word == "}" {
			return l, nil
		}

		switch word {
		case "interface":
			_, _ = tok.nextQuoted()
		case "fixed-address":
			v, _ := tok.nextStmt()
			l.Address = net.ParseIP(strings.TrimSuffix(v, ";")).To4()
		case "bootp", "bootp;":
			if word == "bootp" {
				_, _ = tok.nextStmt()
			}
			l.IsBootp = true
		case "static", "static;":
			if word == "static" {
				_, _ = tok.nextStmt()
			}
			l.IsStatic = true
		case "filename":
			v, _ := tok.nextQuoted()
			l.BootFileName = v
		case "server-name":
			v, _ := tok.nextQuoted()
			l.ServerName = v
		case "medium":
			v, _ := tok.nextQuoted()
			l.Medium = v
		case "renew":
			v, _ := tok.nextStmt()
			l.Renewal, err = parseTime(strings.TrimSuffix(v, ";"))
		case "rebind":
			v, _ := tok.nextStmt()
			l.Rebind, err = parseTime(strings.TrimSuffix(v, ";"))
		case "expire":
			v, _ := tok.nextStmt()
			l.Expiry, err = parseTime(strings.TrimSuffix(v, ";"))
		case "option":
			code, val, oErr := parseOptionLine(tok)
			if oErr != nil {
				return nil, oErr
			}

			l.Options[dhcpv4.GenericOptionCode(code)] = val
		default:
			// Unknown statement, e.g. forward-compatible fields: skip to
			// the terminating ';' unless this token already carried it.
			if !strings.HasSuffix(word, ";") {
				_, _ = tok.nextStmt()
			}
		}

		if err != nil {
			return nil, err
		}
	}
}

func parseOptionLine(tok *tokenizer) (code uint8, val []byte, err error) {
	codeStr, ok := tok.next()
	if !ok {
		return 0, nil, fmt.Errorf("truncated option statement")
	}

	code64, err := strconv.ParseUint(codeStr, 10, 8)
	if err != nil {
		return 0, nil, fmt.Errorf("parsing option code: %w", err)
	}

	typ, ok := tok.next()
	if !ok {
		return 0, nil, fmt.Errorf("truncated option statement")
	}

	raw, ok := tok.nextStmt()
	if !ok {
		return 0, nil, fmt.Errorf("truncated option statement")
	}
	raw = strings.TrimSuffix(raw, ";")
	raw = strings.Trim(raw, `"`)

	switch typ {
	case "hex":
		val, err = hex.DecodeString(raw)
	default:
		val = []byte(raw)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("decoding option %d: %w", code64, err)
	}

	return uint8(code64), val, nil
}

// skipBlock consumes tokens until the matching closing brace of a block the
// caller is not otherwise interested in.
func skipBlock(tok *tokenizer) (err error) {
	open, ok := tok.next()
	if !ok || open != "{" {
		return fmt.Errorf("expected '{'")
	}

	depth := 1
	for depth > 0 {
		word, ok := tok.next()
		if !ok {
			return fmt.Errorf("truncated block")
		}

		switch word {
		case "{":
			depth++
		case "}":
			depth--
		}
	}

	return nil
}
