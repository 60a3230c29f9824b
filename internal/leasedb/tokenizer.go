package leasedb

import (
	"bufio"
	"strings"
)

// tokenizer splits the lease journal grammar into whitespace-separated
// words, keeping quoted strings intact, per spec.md §4.D: "Format
// (textual, whitespace-insensitive, braces nested)".
type tokenizer struct {
	r *bufio.Reader
}

func newTokenizer(r *bufio.Reader) (t *tokenizer) {
	return &tokenizer{r: r}
}

// next returns the next whitespace-delimited token, with quoted strings
// (including their surrounding quotes) returned as a single token, and '{'
// / '}' returned as their own single-character tokens even when not
// surrounded by whitespace.
func (t *tokenizer) next() (tok string, ok bool) {
	t.skipSpace()

	b, err := t.r.ReadByte()
	if err != nil {
		return "", false
	}

	if b == '{' || b == '}' {
		return string(b), true
	}

	if b == '"' {
		var sb strings.Builder
		sb.WriteByte(b)
		for {
			c, cErr := t.r.ReadByte()
			if cErr != nil {
				break
			}

			sb.WriteByte(c)
			if c == '"' {
				break
			}
		}

		return sb.String(), true
	}

	var sb strings.Builder
	sb.WriteByte(b)
	for {
		c, pErr := t.r.Peek(1)
		if pErr != nil || isSpace(c[0]) || c[0] == '{' || c[0] == '}' {
			break
		}

		cb, _ := t.r.ReadByte()
		sb.WriteByte(cb)
	}

	return sb.String(), true
}

// nextQuoted reads a quoted-string statement terminated by ';' and returns
// its unquoted content, e.g. `"eth0";` -> "eth0".
func (t *tokenizer) nextQuoted() (val string, ok bool) {
	tok, ok := t.next()
	if !ok {
		return "", false
	}

	tok = strings.TrimSuffix(tok, ";")
	tok = strings.Trim(tok, `"`)

	// Consume a dangling ';' if the quote and terminator were separate
	// tokens (e.g. `"eth0" ;`).
	t.skipSpace()
	if b, pErr := t.r.Peek(1); pErr == nil && b[0] == ';' {
		_, _ = t.r.ReadByte()
	}

	return tok, true
}

// nextStmt reads tokens until one ending in ';' and returns them joined by
// spaces, including the trailing ';'.
func (t *tokenizer) nextStmt() (stmt string, ok bool) {
	var parts []string
	for {
		tok, tOk := t.next()
		if !tOk {
			if len(parts) == 0 {
				return "", false
			}

			break
		}

		parts = append(parts, tok)
		if strings.HasSuffix(tok, ";") {
			break
		}
	}

	return strings.Join(parts, " "), true
}

func (t *tokenizer) skipSpace() {
	for {
		b, err := t.r.Peek(1)
		if err != nil || !isSpace(b[0]) {
			return
		}

		_, _ = t.r.ReadByte()
	}
}

func isSpace(b byte) (ok bool) {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
