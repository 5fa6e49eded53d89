// Package txtenc converts between raw bytes and the \DDD presentation form
// that the DNS library uses for TXT record strings.  DNSCrypt certificates
// are binary blobs published in TXT records, so both directions are needed:
// unescaping when fetching a certificate and escaping when publishing one.
package txtenc

import (
	"fmt"
	"strings"
)

// Pack escapes raw bytes into a TXT presentation string.
func Pack(b []byte) (s string) {
	out := &strings.Builder{}
	out.Grow(3 + len(b))

	for _, c := range b {
		switch {
		case c == '"' || c == '\\':
			out.WriteByte('\\')
			out.WriteByte(c)
		case c < ' ' || c > '~':
			_, _ = fmt.Fprintf(out, "\\%03d", c)
		default:
			out.WriteByte(c)
		}
	}

	return out.String()
}

// Unpack joins the strings of a TXT record and reverses the \DDD escaping,
// returning the raw bytes.
func Unpack(txts []string) (b []byte) {
	s := strings.Join(txts, "")
	b = make([]byte, 0, len(s))

	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b = append(b, s[i])

			continue
		}

		i++
		if i == len(s) {
			break
		}

		if i+2 < len(s) && isDigit(s[i]) && isDigit(s[i+1]) && isDigit(s[i+2]) {
			b = append(b, dddToByte(s[i:]))
			i += 2
		} else {
			switch s[i] {
			case 't':
				b = append(b, '\t')
			case 'r':
				b = append(b, '\r')
			case 'n':
				b = append(b, '\n')
			default:
				b = append(b, s[i])
			}
		}
	}

	return b
}

// isDigit reports whether b is an ASCII digit.
func isDigit(b byte) (ok bool) { return b >= '0' && b <= '9' }

// dddToByte converts a \DDD escape body to the byte it encodes.
func dddToByte(s string) (b byte) {
	return (s[0]-'0')*100 + (s[1]-'0')*10 + (s[2] - '0')
}
