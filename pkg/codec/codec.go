// Package codec provides a lossless mapping between arbitrary byte strings
// and a human-editable text form, in the spirit of the escape syntax used by
// C and Python string literals.
//
// Printable ASCII and valid multi-byte UTF-8 sequences pass through verbatim.
// ASCII control bytes and bytes that are not part of a valid UTF-8 sequence
// are rendered as backslash escapes (`\n`, `\r`, `\t`, or `\xHH`), and a
// literal backslash becomes `\\`, so the encoding is unambiguous and
// Decode(Encode(b)) == b for every byte string b. The encoded form is used
// for display and editing only; the store always holds raw bytes.
package codec

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DecodeError describes a malformed escape sequence in the input text.
type DecodeError struct {
	// Pos is the byte offset of the offending backslash
	Pos int

	// Msg describes what was wrong with the escape
	Msg string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid escape at offset %d: %s", e.Pos, e.Msg)
}

const hexDigits = "0123456789abcdef"

// Encode renders data as editable text. Every byte string has exactly one
// encoding, and the result round-trips through Decode.
func Encode(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data))

	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			// Not valid UTF-8 at this position, escape the raw byte.
			writeHexEscape(&sb, data[i])
			i++
			continue
		}

		switch {
		case r == '\\':
			sb.WriteString(`\\`)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			writeHexEscape(&sb, byte(r))
		default:
			sb.Write(data[i : i+size])
		}
		i += size
	}

	return sb.String()
}

// Decode parses text produced by Encode (or typed by a user in the same
// syntax) back into raw bytes. It returns a *DecodeError for a truncated
// escape, an unknown escape letter, or invalid hex digits; it never guesses.
func Decode(text string) ([]byte, error) {
	out := make([]byte, 0, len(text))

	for i := 0; i < len(text); {
		c := text[i]
		if c != '\\' {
			out = append(out, c)
			i++
			continue
		}

		if i+1 >= len(text) {
			return nil, &DecodeError{Pos: i, Msg: "truncated escape"}
		}

		switch text[i+1] {
		case '\\':
			out = append(out, '\\')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'x':
			if i+3 >= len(text) {
				return nil, &DecodeError{Pos: i, Msg: "truncated hex escape"}
			}
			hi, ok1 := unhex(text[i+2])
			lo, ok2 := unhex(text[i+3])
			if !ok1 || !ok2 {
				return nil, &DecodeError{
					Pos: i,
					Msg: fmt.Sprintf("invalid hex digits %q", text[i+2:i+4]),
				}
			}
			out = append(out, hi<<4|lo)
			i += 4
			continue
		default:
			return nil, &DecodeError{
				Pos: i,
				Msg: fmt.Sprintf("unknown escape %q", text[i:i+2]),
			}
		}
		i += 2
	}

	return out, nil
}

func writeHexEscape(sb *strings.Builder, b byte) {
	sb.WriteString(`\x`)
	sb.WriteByte(hexDigits[b>>4])
	sb.WriteByte(hexDigits[b&0x0f])
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
