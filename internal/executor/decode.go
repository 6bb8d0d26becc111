package executor

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// DecodeOutput turns captured process output into a string. NSSM writes
// UTF-16LE when its output is a pipe, so a BOM or a NUL in most odd byte
// positions selects UTF-16LE; anything else is treated as UTF-8 with
// invalid sequences replaced.
func DecodeOutput(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if looksUTF16LE(b) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		if len(b)%2 == 1 {
			b = b[:len(b)-1]
		}
		out, err := dec.Bytes(b)
		if err == nil {
			return strings.TrimRight(string(out), "\x00")
		}
	}
	return strings.ToValidUTF8(string(bytes.TrimRight(b, "\x00")), "�")
}

func looksUTF16LE(b []byte) bool {
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xFE {
		return true
	}
	if len(b) < 4 {
		return false
	}
	n := len(b)
	if n > 256 {
		n = 256
	}
	pairs, zeros := 0, 0
	for i := 1; i < n; i += 2 {
		pairs++
		if b[i] == 0 {
			zeros++
		}
	}
	return zeros*4 >= pairs*3
}
