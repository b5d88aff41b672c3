package common

import (
	"fmt"
	"strings"
)

// NormalizePNR strips separators from a PNR ("245-5423890" -> "2455423890")
// and checks it is a 10 digit number.
func NormalizePNR(s string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == ' ':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidPNR, s)
		}
	}
	if b.Len() != 10 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPNR, s)
	}
	return b.String(), nil
}
