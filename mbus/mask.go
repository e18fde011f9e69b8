package mbus

import "fmt"

// MaskSyntaxError reports an address mask that is not eight characters
// of '0', '1' and 'x'.
type MaskSyntaxError struct {
	Mask   string
	Reason string
}

func (e *MaskSyntaxError) Error() string {
	return fmt.Sprintf("mbus: address mask %q: %s", e.Mask, e.Reason)
}

// AddressMask matches the destination byte of a message with per-bit
// don't-cares. Ones holds the bits that must be set, Zeros the bits
// that must be clear; bits in neither are ignored.
type AddressMask struct {
	Ones  byte
	Zeros byte
}

// ParseAddressMask reads the textual form used in config files: eight
// characters, most significant bit first, each '1', '0' or 'x'.
// "1001100x" matches 0x98 and 0x99.
func ParseAddressMask(s string) (AddressMask, error) {
	if len(s) != 8 {
		return AddressMask{}, &MaskSyntaxError{Mask: s, Reason: "must be exactly 8 characters"}
	}
	var m AddressMask
	for i := 0; i < 8; i++ {
		bit := byte(1) << (7 - i)
		switch s[i] {
		case '1':
			m.Ones |= bit
		case '0':
			m.Zeros |= bit
		case 'x', 'X':
		default:
			return AddressMask{}, &MaskSyntaxError{Mask: s, Reason: "characters must be '0', '1' or 'x'"}
		}
	}
	return m, nil
}

// Matches reports whether addr satisfies the mask.
func (m AddressMask) Matches(addr byte) bool {
	return addr&m.Ones == m.Ones && ^addr&m.Zeros == m.Zeros
}

// String renders the mask back in its textual form.
func (m AddressMask) String() string {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		bit := byte(1) << (7 - i)
		switch {
		case m.Ones&bit != 0:
			buf[i] = '1'
		case m.Zeros&bit != 0:
			buf[i] = '0'
		default:
			buf[i] = 'x'
		}
	}
	return string(buf)
}
