package objectkey

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// HashLength is the fixed length of SimpleHash output.
const HashLength = 16

// SimpleHash returns a 16 character base-36 digest of s. It is NOT cryptographic; it only
// spreads object keys. Two 32-bit rolling hashes (multipliers 31 and 9) run over the
// UTF-16 code units of s, their absolute values are rendered in base 36 and
// concatenated, then cut or right-padded with '0' to 16 characters.
func SimpleHash(s string) string {
	if s == "" {
		return strings.Repeat("0", HashLength)
	}

	var h1, h2 int32
	for _, c := range utf16.Encode([]rune(s)) {
		h1 = (h1 << 5) - h1 + int32(c)
		h2 = (h2 << 3) + h2 + int32(c)
	}

	combined := strconv.FormatInt(abs(h1), 36) + strconv.FormatInt(abs(h2), 36)
	if len(combined) >= HashLength {
		return combined[:HashLength]
	}
	return combined + strings.Repeat("0", HashLength-len(combined))
}

func abs(v int32) int64 {
	n := int64(v)
	if n < 0 {
		return -n
	}
	return n
}
