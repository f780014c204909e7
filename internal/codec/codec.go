// Package codec converts between user-typed text, hex text and raw
// bytes.  Frames carry no length prefix or delimiter, so every function
// here works on whatever slice one read or one send produced.
package codec

import (
	"fmt"
	"strings"
	"unicode"
)

// Format selects how a direction renders bytes.
type Format int

const (
	Text Format = iota
	Hex
)

func (f Format) String() string {
	switch f {
	case Text:
		return "text"
	case Hex:
		return "hex"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat accepts "text" (or "char") and "hex", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "char":
		return Text, nil
	case "hex":
		return Hex, nil
	}
	return Text, fmt.Errorf("unknown format %q (want text or hex)", s)
}

// HexEncode renders each byte as two upper-case hex digits followed by
// a space, so the result for a non-empty input ends with a space.
func HexEncode(p []byte) string {
	var b strings.Builder
	b.Grow(len(p) * 3)
	for _, c := range p {
		fmt.Fprintf(&b, "%02X ", c)
	}
	return b.String()
}

// HexDecode strips all whitespace, left-pads an odd digit count with
// '0' and parses the digit pairs left to right.  Digits are counted in
// characters, not bytes.  Pairs that are not valid hex are dropped
// without failing the call.
func HexDecode(text string) []byte {
	digits := normalize(text)
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		if v, ok := pair(digits[i], digits[i+1]); ok {
			out = append(out, v)
		}
	}
	return out
}

// DecodeHexStrict normalizes like HexDecode but fails the whole decode
// on the first pair that is not valid hex.
func DecodeHexStrict(text string) ([]byte, error) {
	digits := normalize(text)
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, ok := pair(digits[i], digits[i+1])
		if !ok {
			return nil, fmt.Errorf("decode %q: invalid pair %q at offset %d",
				string(digits), string(digits[i:i+2]), i)
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode turns user text into the payload for format f.
func Encode(text string, f Format, strict bool) ([]byte, error) {
	if f != Hex {
		return []byte(text), nil
	}
	if strict {
		return DecodeHexStrict(text)
	}
	return HexDecode(text), nil
}

// Decode renders received bytes for display in format f.  Text mode
// is a plain conversion; invalid UTF-8 is passed through as-is.
func Decode(p []byte, f Format) string {
	if f == Hex {
		return HexEncode(p)
	}
	return string(p)
}

func normalize(text string) []rune {
	digits := make([]rune, 0, len(text)+1)
	for _, r := range text {
		if !unicode.IsSpace(r) {
			digits = append(digits, r)
		}
	}
	if len(digits)%2 != 0 {
		digits = append([]rune{'0'}, digits...)
	}
	return digits
}

func pair(hi, lo rune) (byte, bool) {
	h, ok1 := nibble(hi)
	l, ok2 := nibble(lo)
	return h<<4 | l, ok1 && ok2
}

func nibble(r rune) (byte, bool) {
	switch {
	case '0' <= r && r <= '9':
		return byte(r - '0'), true
	case 'a' <= r && r <= 'f':
		return byte(r - 'a' + 10), true
	case 'A' <= r && r <= 'F':
		return byte(r - 'A' + 10), true
	}
	return 0, false
}
