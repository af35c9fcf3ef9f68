// Package stubtest assembles small programs that call imports and runs
// them against the stub registry.
package stubtest

import (
	"encoding/binary"
	"testing"

	"github.com/JohnDoe6345789/winejs/internal/config"
	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/pe"
	"github.com/JohnDoe6345789/winejs/internal/pe/petest"
	"github.com/JohnDoe6345789/winejs/internal/stubs"
)

// Scratch is an unmapped address tests may use for buffers; reads and
// writes there go through the memory overlay.
const Scratch = 0x50000000

// Program is a straight-line sequence of register moves and import calls
// into one DLL, ending in hlt.
type Program struct {
	b    *petest.Builder
	dll  string
	code []byte
}

// NewProgram declares the imports the program may call.
func NewProgram(dll string, fns ...string) *Program {
	return &Program{b: petest.New().Import(dll, fns...), dll: dll}
}

func rex(w bool, reg, rm emulator.Register) byte {
	b := byte(0x40)
	if w {
		b |= 0x08
	}
	if reg >= 8 {
		b |= 0x04
	}
	if rm >= 8 {
		b |= 0x01
	}
	return b
}

// MovImm emits "mov r, imm64".
func (p *Program) MovImm(r emulator.Register, v uint64) *Program {
	p.code = append(p.code, rex(true, 0, r), 0xB8+byte(r&7))
	p.code = binary.LittleEndian.AppendUint64(p.code, v)
	return p
}

// MovReg emits "mov dst, src" on 64-bit registers.
func (p *Program) MovReg(dst, src emulator.Register) *Program {
	p.code = append(p.code, rex(true, src, dst), 0x89, 0xC0|byte(src&7)<<3|byte(dst&7))
	return p
}

// Call emits "call [rip+slot]" for fn.
func (p *Program) Call(fn string) *Program {
	slot := p.b.IATAddress(p.dll, fn)
	p.code = append(p.code, petest.CallIAT(p.b.TextAddress(len(p.code)), slot)...)
	return p
}

// Data sets the contents of .data.
func (p *Program) Data(data []byte) *Program {
	p.b.Data(data)
	return p
}

// DataAddress returns the VA of .data + off.
func (p *Program) DataAddress(off int) uint64 {
	return p.b.DataAddress(off)
}

// Bytes assembles the program into a PE32+ image.
func (p *Program) Bytes() []byte {
	p.b.Code(append(append([]byte(nil), p.code...), 0xF4))
	return p.b.Build()
}

// Run assembles the program, lets setup prepare the CPU and runs it with
// the default registry bound to a new session.
func (p *Program) Run(t testing.TB, cfg *config.Config, setup func(cpu *emulator.CPU), opts ...stubs.SessionOption) (*emulator.RunResult, *stubs.Session, *emulator.CPU) {
	t.Helper()
	img, err := pe.Parse(p.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cpu := emulator.New(img)
	if setup != nil {
		setup(cpu)
	}
	s := stubs.NewSession(img, cfg, opts...)
	res, err := cpu.Run(emulator.RunOptions{MaxSteps: 1000, Hooks: s.Hooks()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res, s, cpu
}

// Call runs a program that makes the single call dll!fn.
func Call(t testing.TB, cfg *config.Config, dll, fn string, setup func(cpu *emulator.CPU), opts ...stubs.SessionOption) (*emulator.RunResult, *stubs.Session, *emulator.CPU) {
	t.Helper()
	return NewProgram(dll, fn).Call(fn).Run(t, cfg, setup, opts...)
}
