package emulator

import "strings"

// Register identifies a general-purpose register by its encoding number.
// RAX..R15 are the sixteen canonical 64-bit host registers; AH..BH are the
// legacy high-byte aliases reachable only from 8-bit operands without REX.
type Register uint8

const (
	RAX Register = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	AH
	CH
	DH
	BH

	// RegNone marks an absent base or index register.
	RegNone Register = 0xFF
)

// NumRegisters is the size of the host register file.
const NumRegisters = 16

var (
	reg64Names = [NumRegisters]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}
	reg32Names = [NumRegisters]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
		"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d"}
	reg16Names = [NumRegisters]string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
		"r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w"}
	reg8Names = [NumRegisters]string{"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
		"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b"}
	highByteNames = [4]string{"ah", "ch", "dh", "bh"}
)

type regRef struct {
	reg   Register
	width uint8
}

var registersByName = func() map[string]regRef {
	m := make(map[string]regRef, 4*NumRegisters+4)
	for i := 0; i < NumRegisters; i++ {
		r := Register(i)
		m[reg64Names[i]] = regRef{r, 64}
		m[reg32Names[i]] = regRef{r, 32}
		m[reg16Names[i]] = regRef{r, 16}
		m[reg8Names[i]] = regRef{r, 8}
	}
	for i, name := range highByteNames {
		m[name] = regRef{AH + Register(i), 8}
	}
	return m
}()

// ParseRegister resolves a register name such as "rdx", "r8d" or "al".
func ParseRegister(name string) (Register, uint8, bool) {
	ref, ok := registersByName[strings.ToLower(name)]
	return ref.reg, ref.width, ok
}

// Host returns the 64-bit register that backs r.
func (r Register) Host() Register {
	if r >= AH && r <= BH {
		return r - AH
	}
	return r
}

// IsHighByte reports whether r is one of ah, ch, dh, bh.
func (r Register) IsHighByte() bool {
	return r >= AH && r <= BH
}

// Name returns the assembler name of r viewed at width bits.
func (r Register) Name(width uint8) string {
	switch {
	case r == RegNone:
		return ""
	case r.IsHighByte():
		return highByteNames[r-AH]
	case r >= NumRegisters:
		return "?"
	}
	switch width {
	case 8:
		return reg8Names[r]
	case 16:
		return reg16Names[r]
	case 32:
		return reg32Names[r]
	default:
		return reg64Names[r]
	}
}

func (r Register) String() string {
	return r.Name(64)
}
