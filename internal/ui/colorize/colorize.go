package colorize

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"golang.org/x/term"
)

var forced atomic.Int32 // 0 auto, 1 on, -1 off

// SetEnabled forces colors on or off regardless of the environment.
func SetEnabled(on bool) {
	if on {
		forced.Store(1)
	} else {
		forced.Store(-1)
	}
}

// AutoDetect enables colors only when f is a terminal and the environment
// does not disable them.
func AutoDetect(f *os.File) {
	SetEnabled(!envDisabled() && term.IsTerminal(int(f.Fd())))
}

func envDisabled() bool {
	return os.Getenv("WINEJS_NO_COLOR") != "" || os.Getenv("NO_COLOR") != ""
}

// IsDisabled returns true if colors are disabled.
func IsDisabled() bool {
	switch forced.Load() {
	case 1:
		return false
	case -1:
		return true
	}
	return envDisabled()
}

type highlighter struct {
	lexer     chroma.Lexer
	style     *chroma.Style
	formatter chroma.Formatter
}

var loadHighlighter = sync.OnceValue(func() *highlighter {
	lexer := lexers.Get("nasm")
	if lexer == nil {
		return nil
	}
	formatter := formatters.Get("terminal16m")
	if formatter == nil {
		formatter = formatters.Fallback
	}
	return &highlighter{lexer: chroma.Coalesce(lexer), style: X86Dark, formatter: formatter}
})

// Instruction highlights one instruction in Intel syntax.
func Instruction(insn string) string {
	if IsDisabled() {
		return insn
	}
	h := loadHighlighter()
	if h == nil {
		return insn
	}
	it, err := h.lexer.Tokenise(nil, insn)
	if err != nil {
		return insn
	}
	var buf strings.Builder
	if err := h.formatter.Format(&buf, h.style, it); err != nil {
		return insn
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func paint(r, g, b uint8, s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;%d;%d;%dm%s\033[0m", r, g, b, s)
}

// Address formats a 64-bit address in yellow.
func Address(addr uint64) string {
	return paint(255, 200, 0, fmt.Sprintf("%016X", addr))
}

// Tag formats a hashtag in light pink.
func Tag(tag string) string { return paint(255, 180, 200, tag) }

// Import formats a qualified import name in yellow.
func Import(name string) string { return paint(255, 200, 0, name) }

// Detail formats detail text in light gray.
func Detail(s string) string { return paint(180, 180, 180, s) }

// Border formats border characters in dark gray.
func Border(s string) string { return paint(80, 80, 80, s) }

// Comment formats comments in white.
func Comment(s string) string { return paint(255, 255, 255, s) }

// Header formats header text in blue.
func Header(s string) string { return paint(86, 156, 214, s) }

// HexBytes formats opcode bytes in gray.
func HexBytes(s string) string { return paint(100, 100, 100, s) }

// Console formats guest console output in green.
func Console(s string) string { return paint(0, 255, 0, s) }

// Error formats error messages in pink.
func Error(s string) string { return paint(255, 128, 192, s) }

// String formats string values in pink.
func String(s string) string { return paint(255, 128, 192, s) }
