// Package disasm renders guest instructions in Intel syntax for traces and
// the debugger.
package disasm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/pe"
)

// maxInsnLen is the architectural limit on x86 instruction length.
const maxInsnLen = 15

// Line is one disassembled instruction.
type Line struct {
	Address uint64
	Bytes   []byte
	Text    string
	// Import is the qualified import an indirect call or jmp reaches
	// through the IAT, if any.
	Import string
	// Supported is false when the emulator cannot decode the instruction.
	Supported bool
}

// At disassembles the instruction at addr as the CPU would see it,
// including any bytes written to the overlay.
func At(cpu *emulator.CPU, addr uint64) Line {
	mem, img := cpu.Memory(), cpu.Image()
	code := mem.ReadBytes(addr, maxInsnLen)
	line := Line{Address: addr}

	in, err := cpu.Decoder().Decode(addr)
	if err == nil {
		line.Supported = true
		line.Import = importOf(img, in)
	}

	inst, xerr := x86asm.Decode(code, 64)
	switch {
	case xerr == nil:
		line.Bytes = code[:inst.Len]
		line.Text = x86asm.IntelSyntax(inst, addr, Symbols(img))
	case err == nil:
		line.Bytes = code[:in.Length]
		line.Text = in.String()
	default:
		line.Bytes = code[:1]
		line.Text = fmt.Sprintf("db 0x%02x", code[0])
	}
	return line
}

// Hex returns the instruction bytes as uppercase hex.
func (l Line) Hex() string {
	return fmt.Sprintf("%X", l.Bytes)
}

func importOf(img *pe.Image, in *emulator.Instruction) string {
	if in.Mnemonic != emulator.Call && in.Mnemonic != emulator.Jmp || in.HasRel || len(in.Operands) == 0 {
		return ""
	}
	op := in.Operands[0]
	if op.Kind != emulator.OperandMemory || !op.Mem.RIPRelative {
		return ""
	}
	if sym, ok := img.ImportAt(in.Next() + uint64(int64(op.Mem.Disp))); ok {
		return sym.Qualified()
	}
	return ""
}

// Symbols resolves IAT slots and the entry point for x86asm.
func Symbols(img *pe.Image) x86asm.SymLookup {
	entry := img.EntryPoint()
	return func(addr uint64) (string, uint64) {
		if sym, ok := img.ImportAt(addr); ok {
			return sym.Qualified(), addr
		}
		if addr == entry {
			return "entry", addr
		}
		return "", 0
	}
}
