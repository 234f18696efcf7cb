// Package ascii owns the text conventions shared by the wire protocol and the
// memory records: uppercase hex fields, 0xFF padded names, and packed digit
// strings.
package ascii

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Pad is the filler byte for unused name bytes, digit nibbles and records.
const Pad byte = 0xFF

var (
	ErrInvalidHex   = errors.New("ascii: invalid hex")
	ErrNameTooLong  = errors.New("ascii: name too long")
	ErrInvalidName  = errors.New("ascii: name is not printable ascii")
	ErrInvalidDigit = errors.New("ascii: invalid digit string")
)

// Hex formats v as an uppercase hex field of exactly width digits.
func Hex(v int, width int) string {
	return fmt.Sprintf("%0*X", width, v)
}

// HexBytes formats b as contiguous uppercase hex.
func HexBytes(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// Unhex parses a contiguous hex field of either case.
func Unhex(s string) ([]byte, error) {
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	return out, nil
}

// ParseHex parses a numeric hex field such as an offset or length.
func ParseHex(s string) (int, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	return int(v), nil
}

// DecodeName reads ASCII text up to the first Pad byte.
func DecodeName(b []byte) string {
	end := len(b)
	for i, c := range b {
		if c == Pad {
			end = i
			break
		}
	}
	return string(b[:end])
}

// EncodeName writes name into dst and fills the remainder with Pad.
func EncodeName(name string, dst []byte) error {
	if len(name) > len(dst) {
		return fmt.Errorf("%w: %q (max %d)", ErrNameTooLong, name, len(dst))
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] > 0x7E {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	n := copy(dst, name)
	for i := n; i < len(dst); i++ {
		dst[i] = Pad
	}
	return nil
}

// IsBlank reports whether every byte of b is Pad.
func IsBlank(b []byte) bool {
	for _, c := range b {
		if c != Pad {
			return false
		}
	}
	return true
}

// DecodeDigits returns the first n nibbles of b as a hex digit string.
// A blank field decodes to "".
func DecodeDigits(b []byte, n int) string {
	if IsBlank(b) {
		return ""
	}
	s := HexBytes(b)
	if n < len(s) {
		s = s[:n]
	}
	return s
}

// EncodeDigits packs decimal digits two per byte into dst, padding unused
// nibbles with 0xF. An empty string blanks the field.
func EncodeDigits(digits string, dst []byte) error {
	if len(digits) > 2*len(dst) {
		return fmt.Errorf("%w: %q longer than %d digits", ErrInvalidDigit, digits, 2*len(dst))
	}
	for i := range dst {
		dst[i] = Pad
	}
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: %q", ErrInvalidDigit, digits)
		}
		d := c - '0'
		if i%2 == 0 {
			dst[i/2] = d<<4 | 0x0F
		} else {
			dst[i/2] = dst[i/2]&0xF0 | d
		}
	}
	return nil
}

// IsDecimal reports whether s is non-empty and made only of '0'..'9'.
func IsDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
