package emulator

import (
	"fmt"
	"strings"
)

// Mnemonic is the operation an Instruction performs.
type Mnemonic uint8

const (
	Invalid Mnemonic = iota
	Nop
	Hlt
	Ret
	Mov
	Lea
	Add
	Sub
	And
	Or
	Xor
	Cmp
	Test
	Imul
	Shl
	Shr
	Sar
	Movzx
	Push
	Pop
	Call
	Jmp
	Je
	Jne

	numMnemonics
)

var mnemonicNames = [numMnemonics]string{
	Invalid: "(bad)",
	Nop:     "nop",
	Hlt:     "hlt",
	Ret:     "ret",
	Mov:     "mov",
	Lea:     "lea",
	Add:     "add",
	Sub:     "sub",
	And:     "and",
	Or:      "or",
	Xor:     "xor",
	Cmp:     "cmp",
	Test:    "test",
	Imul:    "imul",
	Shl:     "shl",
	Shr:     "shr",
	Sar:     "sar",
	Movzx:   "movzx",
	Push:    "push",
	Pop:     "pop",
	Call:    "call",
	Jmp:     "jmp",
	Je:      "je",
	Jne:     "jne",
}

func (m Mnemonic) String() string {
	if m < numMnemonics {
		return mnemonicNames[m]
	}
	return fmt.Sprintf("mnemonic(%d)", uint8(m))
}

// OperandKind tags the active member of an Operand.
type OperandKind uint8

const (
	OperandRegister OperandKind = iota + 1
	OperandImmediate
	OperandMemory
)

// MemRef is a memory operand's effective address expression:
// base + index*scale + disp, or next_rip + disp when RIPRelative.
type MemRef struct {
	Base        Register
	Index       Register
	Scale       uint8
	Disp        int32
	RIPRelative bool
}

// Operand is a register, immediate or memory reference of Width bits.
type Operand struct {
	Kind  OperandKind
	Width uint8
	Reg   Register
	Imm   int64
	Mem   MemRef
}

// RegOperand returns a register operand.
func RegOperand(r Register, width uint8) Operand {
	return Operand{Kind: OperandRegister, Width: width, Reg: r}
}

// ImmOperand returns an immediate operand.
func ImmOperand(v int64, width uint8) Operand {
	return Operand{Kind: OperandImmediate, Width: width, Imm: v}
}

// MemOperand returns a memory operand.
func MemOperand(m MemRef, width uint8) Operand {
	return Operand{Kind: OperandMemory, Width: width, Mem: m}
}

var ptrNames = map[uint8]string{8: "byte", 16: "word", 32: "dword", 64: "qword", 128: "xmmword"}

func (o Operand) String() string {
	switch o.Kind {
	case OperandRegister:
		return o.Reg.Name(o.Width)
	case OperandImmediate:
		return formatSigned(o.Imm)
	case OperandMemory:
		var b strings.Builder
		if p, ok := ptrNames[o.Width]; ok {
			b.WriteString(p)
			b.WriteString(" ptr ")
		}
		b.WriteByte('[')
		sep := ""
		switch {
		case o.Mem.RIPRelative:
			b.WriteString("rip")
			sep = "+"
		case o.Mem.Base != RegNone:
			b.WriteString(o.Mem.Base.Name(64))
			sep = "+"
		}
		if o.Mem.Index != RegNone {
			fmt.Fprintf(&b, "%s%s*%d", sep, o.Mem.Index.Name(64), o.Mem.Scale)
			sep = "+"
		}
		if o.Mem.Disp != 0 || sep == "" {
			d := int64(o.Mem.Disp)
			if d < 0 && sep != "" {
				b.WriteString("-")
				d = -d
			} else {
				b.WriteString(sep)
			}
			fmt.Fprintf(&b, "0x%x", d)
		}
		b.WriteByte(']')
		return b.String()
	}
	return "?"
}

func formatSigned(v int64) string {
	if v < 0 {
		return fmt.Sprintf("-0x%x", uint64(-v))
	}
	return fmt.Sprintf("0x%x", v)
}

// Instruction is one decoded instruction. Instructions are produced fresh
// by every Decode call and are not retained by the CPU.
type Instruction struct {
	Address  uint64
	Mnemonic Mnemonic
	Length   int
	Operands []Operand

	// Rel is the sign-extended displacement of a relative branch.
	Rel    int64
	HasRel bool

	Opcode   uint16
	Prefixes []byte
	REX      byte
}

// Next returns the address of the following instruction.
func (in *Instruction) Next() uint64 {
	return in.Address + uint64(in.Length)
}

// Target returns the destination of a relative branch.
func (in *Instruction) Target() uint64 {
	return in.Next() + uint64(in.Rel)
}

// String renders the instruction in Intel syntax.
func (in *Instruction) String() string {
	if in.HasRel {
		return fmt.Sprintf("%s 0x%x", in.Mnemonic, in.Target())
	}
	if len(in.Operands) == 0 {
		return in.Mnemonic.String()
	}
	parts := make([]string, len(in.Operands))
	for i, op := range in.Operands {
		parts[i] = op.String()
	}
	return in.Mnemonic.String() + " " + strings.Join(parts, ", ")
}
