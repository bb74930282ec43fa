package protocol

import (
	"fmt"
	"strings"
)

// HexASCII renders data as rows of 16 hex bytes, a separator line, and the
// printable characters when there are any. Bytes 0x20..0x9A plus CR and LF
// count as printable.
func HexASCII(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var hexPart, plain strings.Builder
	for i, b := range data {
		fmt.Fprintf(&hexPart, "%02X ", b)
		if b == 0x0D || b == 0x0A || (b >= 0x20 && b <= 0x9A) {
			plain.WriteByte(b)
		} else {
			plain.WriteByte(' ')
		}
		if (i+1)%16 == 0 {
			hexPart.WriteByte('\n')
			plain.WriteByte('\n')
		}
	}

	out := hexPart.String() + "\n-----------------------------------------------\n"
	if strings.TrimSpace(plain.String()) != "" {
		out += plain.String()
	}
	return out
}
