package netaddr

import (
	"fmt"
	"strings"
)

// MAC is a 6-byte IEEE 802 hardware address.
type MAC [6]byte

// macHexDigits is the number of hex digits in a MAC address.
const macHexDigits = 12

// ParseMAC parses a MAC address written as 12 hex digits, optionally split
// into six 2-digit groups by ':' or '-'. Separators may differ between
// groups but every separator position must hold one. Surrounding whitespace
// is ignored and case does not matter.
func ParseMAC(text string) (MAC, error) {
	var mac MAC
	s := strings.TrimSpace(text)

	switch len(s) {
	case macHexDigits:
	case macHexDigits + 5:
		var b strings.Builder
		b.Grow(macHexDigits)
		for i := 0; i < len(s); i++ {
			if i%3 == 2 {
				if s[i] != ':' && s[i] != '-' {
					return mac, fmt.Errorf("%w: %q has malformed separators", ErrInvalidAddress, text)
				}
				continue
			}
			b.WriteByte(s[i])
		}
		s = b.String()
	default:
		return mac, fmt.Errorf("%w: %q is not a 12-digit MAC address", ErrInvalidAddress, text)
	}

	for i := range mac {
		hi, ok1 := fromHex(s[2*i])
		lo, ok2 := fromHex(s[2*i+1])
		if !ok1 || !ok2 {
			return MAC{}, fmt.Errorf("%w: %q contains non-hex characters", ErrInvalidAddress, text)
		}
		mac[i] = hi<<4 | lo
	}
	return mac, nil
}

// String renders the canonical upper-case colon form.
func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsZero reports whether every byte is zero.
func (m MAC) IsZero() bool {
	return m == MAC{}
}

// MarshalText implements encoding.TextMarshaler.
func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MAC) UnmarshalText(text []byte) error {
	parsed, err := ParseMAC(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func fromHex(c byte) (byte, bool) {
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
