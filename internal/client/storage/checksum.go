package storage

import (
	"strconv"
	"unicode/utf16"
)

// Checksum computes the 32-bit rolling hash (h = h*31 + c over UTF-16 code
// units) of s and renders its absolute value in base 36. It detects
// accidental corruption only.
func Checksum(s string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}

	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}
