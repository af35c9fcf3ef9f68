package msvcrt

import (
	"fmt"
	"math"
	"strings"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
)

// StringReader reads a guest string of at most max units (0 for the
// default limit), as UTF-16 when wide is set.
type StringReader func(addr uint64, max int, wide bool) string

// Format expands a C printf format string. next yields successive variadic
// arguments as raw 64-bit slots. Integer widths follow the LLP64 model, so
// %d and %ld are 32-bit and %lld, %I64d, %zd and %p are 64-bit.
func Format(format string, next func() uint64, str StringReader) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		start := i
		i++
		if i >= len(format) {
			b.WriteByte('%')
			break
		}

		var conv strings.Builder
		conv.WriteByte('%')
		for ; i < len(format) && strings.IndexByte("-+ #0", format[i]) >= 0; i++ {
			conv.WriteByte(format[i])
		}
		i = number(format, i, &conv, next)
		precision := -1
		if i < len(format) && format[i] == '.' {
			conv.WriteByte('.')
			i++
			precision = 0
			if i < len(format) && format[i] == '*' {
				precision = int(int32(next()))
				fmt.Fprintf(&conv, "%d", precision)
				i++
			} else {
				for ; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
					precision = precision*10 + int(format[i]-'0')
					conv.WriteByte(format[i])
				}
			}
		}

		width, long, j := lengthModifier(format, i)
		i = j
		if i >= len(format) {
			b.WriteString(format[start:])
			break
		}

		verb := format[i]
		switch verb {
		case '%':
			b.WriteByte('%')
		case 'd', 'i':
			fmt.Fprintf(&b, conv.String()+"d", emulator.SignExtend(next(), width))
		case 'u':
			fmt.Fprintf(&b, conv.String()+"d", emulator.Mask(next(), width))
		case 'x', 'X', 'o':
			fmt.Fprintf(&b, conv.String()+string(verb), emulator.Mask(next(), width))
		case 'c':
			b.WriteByte(byte(next()))
		case 's', 'S':
			limit := 0
			if precision >= 0 {
				limit = precision
			}
			fmt.Fprintf(&b, conv.String()+"s", str(next(), limit, long || verb == 'S'))
		case 'p':
			fmt.Fprintf(&b, "%016X", next())
		case 'f', 'F', 'e', 'E', 'g', 'G':
			fmt.Fprintf(&b, conv.String()+string(verb), math.Float64frombits(next()))
		case 'n':
			next()
		default:
			b.WriteString(format[start : i+1])
		}
	}
	return b.String()
}

// number copies a field width, expanding '*' from the argument list.
func number(format string, i int, conv *strings.Builder, next func() uint64) int {
	if i < len(format) && format[i] == '*' {
		fmt.Fprintf(conv, "%d", int32(next()))
		return i + 1
	}
	for ; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
		conv.WriteByte(format[i])
	}
	return i
}

// lengthModifier returns the integer width selected by the modifier at i,
// whether it was a single 'l', and the index just past it.
func lengthModifier(format string, i int) (width uint8, long bool, next int) {
	rest := format[i:]
	for _, m := range []struct {
		prefix string
		width  uint8
	}{
		{"hh", 8}, {"h", 16},
		{"ll", 64}, {"I64", 64}, {"I32", 32},
		{"l", 32}, {"L", 64},
		{"z", 64}, {"j", 64}, {"t", 64}, {"I", 64},
	} {
		if strings.HasPrefix(rest, m.prefix) {
			return m.width, m.prefix == "l", i + len(m.prefix)
		}
	}
	return 32, false, i
}
