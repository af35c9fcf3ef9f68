// Package winstr reads Windows strings out of guest memory.
package winstr

import (
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	DefaultLimit = 256
	MaxANSIBytes = 4096
	MaxWideChars = 2048
)

// Source is anything that can return a byte of guest memory.
type Source interface {
	ByteAt(addr uint64) byte
}

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func limit(n, max int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return min(n, max)
}

// ReadANSI reads a NUL-terminated code page 1252 string of at most maxLen
// bytes. A null address reads as the empty string.
func ReadANSI(src Source, addr uint64, maxLen int) string {
	if addr == 0 {
		return ""
	}
	n := limit(maxLen, MaxANSIBytes)
	buf := make([]byte, 0, 32)
	for i := 0; i < n; i++ {
		b := src.ByteAt(addr + uint64(i))
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	if len(buf) == 0 {
		return ""
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(buf)
	if err != nil {
		return string(buf)
	}
	return string(out)
}

// ReadWide reads a NUL-terminated UTF-16LE string of at most maxChars code
// units. Unpaired surrogates decode as U+FFFD.
func ReadWide(src Source, addr uint64, maxChars int) string {
	if addr == 0 {
		return ""
	}
	n := limit(maxChars, MaxWideChars)
	buf := make([]byte, 0, 64)
	for i := 0; i < n; i++ {
		lo := src.ByteAt(addr + uint64(2*i))
		hi := src.ByteAt(addr + uint64(2*i+1))
		if lo == 0 && hi == 0 {
			break
		}
		buf = append(buf, lo, hi)
	}
	if len(buf) == 0 {
		return ""
	}
	out, err := utf16LE.NewDecoder().Bytes(buf)
	if err != nil {
		return ""
	}
	return string(out)
}

// ExtractPrintable splits data into runs of printable ASCII, newline and
// carriage return.
func ExtractPrintable(data []byte) []string {
	var (
		out   []string
		start = -1
	)
	for i, b := range data {
		if b >= 32 && b <= 126 || b == '\n' || b == '\r' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, string(data[start:i]))
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, string(data[start:]))
	}
	return out
}

// EncodeWide returns s as NUL-terminated UTF-16LE, for writing strings into
// guest memory.
func EncodeWide(s string) []byte {
	out, err := utf16LE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte{0, 0}
	}
	return append(out, 0, 0)
}
