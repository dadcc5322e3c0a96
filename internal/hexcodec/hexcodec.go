// Package hexcodec converts the textual hex form used in configuration and logs
// ("01000000", "<01 00 00 00>") to bytes and back.
package hexcodec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidHex is returned for input that is not an even run of hex digits
var ErrInvalidHex = errors.New("invalid hex string")

var hexDigits = regexp.MustCompile(`^[0-9a-fA-F]*$`)

// Decode trims '<', '>' and spaces from both ends, drops inner spaces and
// decodes each pair of hex digits into one byte.
// The empty string decodes to an empty, non-nil slice.
func Decode(s string) ([]byte, error) {
	cleaned := strings.ReplaceAll(strings.Trim(s, "<> "), " ", "")

	if !hexDigits.MatchString(cleaned) {
		return nil, fmt.Errorf("%w: %q contains non-hex characters", ErrInvalidHex, s)
	}
	if len(cleaned)%2 != 0 {
		return nil, fmt.Errorf("%w: %q has an odd number of digits", ErrInvalidHex, s)
	}

	out, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

// MustDecode is Decode for compile-time constants; it panics on invalid input
func MustDecode(s string) []byte {
	b, err := Decode(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Encode returns upper-case hex without separators
func Encode(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
