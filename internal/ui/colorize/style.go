// Package colorize provides terminal colors for traces and syntax
// highlighting for x86 disassembly.
package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// Palette, as 24-bit RGB.
const (
	AddressColor  = "#FFC800" // yellow
	MnemonicColor = "#FFFFFF"
	RegisterColor = "#87CEEB" // light blue
	NumberColor   = "#FF80C0" // pink
	CommentColor  = "#FF8000" // orange
	StringColor   = "#00FF00"
	HexBytesColor = "#646464"
)

// X86Dark is the chroma style used for NASM-syntax instructions.
var X86Dark = styles.Register(chroma.MustNewStyle("x86-dark", chroma.StyleEntries{
	chroma.Text:           MnemonicColor,
	chroma.Background:     "bg:#000000",
	chroma.Comment:        CommentColor,
	chroma.CommentPreproc: CommentColor,

	chroma.Keyword:       MnemonicColor,
	chroma.KeywordPseudo: MnemonicColor,
	chroma.KeywordType:   "#C0C0C0", // qword, dword, ptr
	chroma.Name:          RegisterColor,
	chroma.NameBuiltin:   RegisterColor,
	chroma.NameVariable:  RegisterColor,
	chroma.NameFunction:  MnemonicColor,
	chroma.NameLabel:     AddressColor,

	chroma.LiteralNumber:        NumberColor,
	chroma.LiteralNumberHex:     NumberColor,
	chroma.LiteralNumberBin:     NumberColor,
	chroma.LiteralNumberOct:     NumberColor,
	chroma.LiteralNumberInteger: NumberColor,
	chroma.LiteralNumberFloat:   NumberColor,

	chroma.Operator:    MnemonicColor,
	chroma.Punctuation: MnemonicColor,
	chroma.String:      StringColor,
}))
