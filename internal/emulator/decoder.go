package emulator

// ByteSource supplies instruction bytes by virtual address.
type ByteSource interface {
	ByteAt(addr uint64) byte
}

// maxPrefixes bounds the prefix scan so a run of prefix bytes cannot make
// an instruction longer than the architectural 15-byte limit.
const maxPrefixes = 14

// decodeFn fills in the instruction for one opcode. It returns false when
// the bytes select an unsupported form (e.g. an unassigned group member).
type decodeFn func(c *cursor, in *Instruction) bool

var oneByteOps, twoByteOps [256]decodeFn

func init() {
	for i := 0; i < 8; i++ {
		oneByteOps[0x50+i] = opPUSH_Zq
		oneByteOps[0x58+i] = opPOP_Zq
		oneByteOps[0xB8+i] = opMOV_Zv_Iv
	}

	oneByteOps[0x09] = aluEvGv(Or)
	oneByteOps[0x0B] = aluGvEv(Or)
	oneByteOps[0x21] = aluEvGv(And)
	oneByteOps[0x23] = aluGvEv(And)
	oneByteOps[0x31] = aluEvGv(Xor)
	oneByteOps[0x33] = aluGvEv(Xor)
	oneByteOps[0x39] = aluEvGv(Cmp)
	oneByteOps[0x3B] = aluGvEv(Cmp)
	oneByteOps[0x85] = aluEvGv(Test)
	oneByteOps[0x89] = aluEvGv(Mov)
	oneByteOps[0x8B] = aluGvEv(Mov)
	oneByteOps[0x88] = opMOV_Eb_Gb
	oneByteOps[0x8D] = opLEA_Gv_M

	oneByteOps[0x69] = imulImm(4)
	oneByteOps[0x6B] = imulImm(1)
	oneByteOps[0x81] = group1(4)
	oneByteOps[0x83] = group1(1)
	oneByteOps[0xC1] = group2(countImm8)
	oneByteOps[0xD1] = group2(countOne)
	oneByteOps[0xD3] = group2(countCL)
	oneByteOps[0xC6] = opMOV_Eb_Ib
	oneByteOps[0xC7] = opMOV_Ev_Iz
	oneByteOps[0xFF] = group5

	oneByteOps[0x90] = bare(Nop)
	oneByteOps[0xF4] = bare(Hlt)
	oneByteOps[0xC3] = bare(Ret)
	oneByteOps[0xE8] = branchRel(Call, 4)
	oneByteOps[0xE9] = branchRel(Jmp, 4)
	oneByteOps[0xEB] = branchRel(Jmp, 1)
	oneByteOps[0x74] = branchRel(Je, 1)
	oneByteOps[0x75] = branchRel(Jne, 1)

	twoByteOps[0x84] = branchRel(Je, 4)
	twoByteOps[0x85] = branchRel(Jne, 4)
	twoByteOps[0xAF] = aluGvEv(Imul)
	twoByteOps[0xB6] = movzx(8)
	twoByteOps[0xB7] = movzx(16)
	for _, op := range []byte{0x10, 0x11, 0x28, 0x29, 0x57, 0x1F} {
		twoByteOps[op] = opNOP_Ev
	}
}

// Decoder turns bytes at a virtual address into Instructions.
type Decoder struct {
	src ByteSource
}

// NewDecoder returns a decoder reading from src.
func NewDecoder(src ByteSource) *Decoder {
	return &Decoder{src: src}
}

// Decode decodes the instruction starting at addr.
func (d *Decoder) Decode(addr uint64) (*Instruction, error) {
	c := &cursor{src: d.src, pc: addr}

	for n := 0; ; n++ {
		b := c.src.ByteAt(c.pc)
		if b >= 0x40 && b <= 0x4F {
			c.rex = b
		} else if isLegacyPrefix(b) {
			c.prefixes = append(c.prefixes, b)
			// REX only counts when it immediately precedes the opcode.
			c.rex = 0
		} else {
			break
		}
		if n == maxPrefixes {
			return nil, &DecodeError{Address: addr, Opcode: uint16(b), Reason: "too many prefixes"}
		}
		c.pc++
	}

	op := uint16(c.u8())
	rule := oneByteOps[op]
	if op == 0x0F {
		second := c.u8()
		op = 0x0F00 | uint16(second)
		rule = twoByteOps[second]
	}

	in := &Instruction{Address: addr, Opcode: op, Prefixes: c.prefixes, REX: c.rex}
	if rule == nil || !rule(c, in) {
		return nil, &DecodeError{Address: addr, Opcode: op}
	}
	in.Length = int(c.pc - addr)
	return in, nil
}

func isLegacyPrefix(b byte) bool {
	switch b {
	case 0x66, 0x67, 0xF0, 0xF2, 0xF3:
		return true
	}
	return false
}

// cursor tracks the read position and prefix state of one decode.
type cursor struct {
	src      ByteSource
	pc       uint64
	rex      byte
	prefixes []byte
}

func (c *cursor) u8() uint8 {
	b := c.src.ByteAt(c.pc)
	c.pc++
	return b
}

func (c *cursor) uintN(n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(c.u8()) << (8 * i)
	}
	return v
}

// imm reads an n-byte sign-extended immediate.
func (c *cursor) imm(n int) int64 {
	return SignExtend(c.uintN(n), uint8(8*n))
}

func (c *cursor) rexW() bool { return c.rex&0x8 != 0 }
func (c *cursor) rexR() uint8 { return c.rex >> 2 & 1 * 8 }
func (c *cursor) rexX() uint8 { return c.rex >> 1 & 1 * 8 }
func (c *cursor) rexB() uint8 { return c.rex & 1 * 8 }

// opWidth is the operand size selected by REX.W.
func (c *cursor) opWidth() uint8 {
	if c.rexW() {
		return 64
	}
	return 32
}

// gpr maps an extended register number to a Register at width, honoring
// the legacy ah/ch/dh/bh encodings of 8-bit operands without REX.
func (c *cursor) gpr(num uint8, width uint8) Register {
	if width == 8 && c.rex == 0 && num >= 4 && num <= 7 {
		return AH + Register(num-4)
	}
	return Register(num)
}

// modRM is a decoded ModRM byte plus its SIB and displacement.
type modRM struct {
	mod, reg, rm uint8 // raw 3-bit fields
	mem          MemRef
}

func (c *cursor) modRM() modRM {
	b := c.u8()
	m := modRM{mod: b >> 6, reg: b >> 3 & 7, rm: b & 7}
	if m.mod == 3 {
		return m
	}

	mem := MemRef{Base: RegNone, Index: RegNone, Scale: 1}
	switch {
	case m.rm == 4:
		sib := c.u8()
		mem.Scale = 1 << (sib >> 6)
		if index := sib>>3&7 + c.rexX(); index != 4 {
			mem.Index = Register(index)
		}
		if base := sib & 7; base == 5 && m.mod == 0 {
			mem.Disp = int32(c.imm(4))
		} else {
			mem.Base = Register(base + c.rexB())
		}
	case m.rm == 5 && m.mod == 0:
		mem.RIPRelative = true
		mem.Disp = int32(c.imm(4))
	default:
		mem.Base = Register(m.rm + c.rexB())
	}

	switch m.mod {
	case 1:
		mem.Disp = int32(c.imm(1))
	case 2:
		mem.Disp = int32(c.imm(4))
	}
	m.mem = mem
	return m
}

// E returns the r/m operand at width.
func (m modRM) E(c *cursor, width uint8) Operand {
	if m.mod == 3 {
		return RegOperand(c.gpr(m.rm+c.rexB(), width), width)
	}
	return MemOperand(m.mem, width)
}

// G returns the reg-field operand at width.
func (m modRM) G(c *cursor, width uint8) Operand {
	return RegOperand(c.gpr(m.reg+c.rexR(), width), width)
}

func bare(m Mnemonic) decodeFn {
	return func(c *cursor, in *Instruction) bool {
		in.Mnemonic = m
		return true
	}
}

func branchRel(m Mnemonic, size int) decodeFn {
	return func(c *cursor, in *Instruction) bool {
		in.Mnemonic = m
		in.Rel = c.imm(size)
		in.HasRel = true
		return true
	}
}

func opPUSH_Zq(c *cursor, in *Instruction) bool {
	in.Mnemonic = Push
	in.Operands = []Operand{RegOperand(Register(uint8(in.Opcode)-0x50+c.rexB()), 64)}
	return true
}

func opPOP_Zq(c *cursor, in *Instruction) bool {
	in.Mnemonic = Pop
	in.Operands = []Operand{RegOperand(Register(uint8(in.Opcode)-0x58+c.rexB()), 64)}
	return true
}

func opMOV_Zv_Iv(c *cursor, in *Instruction) bool {
	width := c.opWidth()
	reg := Register(uint8(in.Opcode) - 0xB8 + c.rexB())
	in.Mnemonic = Mov
	in.Operands = []Operand{
		RegOperand(reg, width),
		ImmOperand(int64(c.uintN(int(width/8))), width),
	}
	return true
}

// aluEvGv decodes "op r/m, reg".
func aluEvGv(m Mnemonic) decodeFn {
	return func(c *cursor, in *Instruction) bool {
		w := c.opWidth()
		rm := c.modRM()
		in.Mnemonic = m
		in.Operands = []Operand{rm.E(c, w), rm.G(c, w)}
		return true
	}
}

// aluGvEv decodes "op reg, r/m".
func aluGvEv(m Mnemonic) decodeFn {
	return func(c *cursor, in *Instruction) bool {
		w := c.opWidth()
		rm := c.modRM()
		in.Mnemonic = m
		in.Operands = []Operand{rm.G(c, w), rm.E(c, w)}
		return true
	}
}

func opMOV_Eb_Gb(c *cursor, in *Instruction) bool {
	rm := c.modRM()
	in.Mnemonic = Mov
	in.Operands = []Operand{rm.E(c, 8), rm.G(c, 8)}
	return true
}

func opLEA_Gv_M(c *cursor, in *Instruction) bool {
	w := c.opWidth()
	rm := c.modRM()
	if rm.mod == 3 {
		return false
	}
	in.Mnemonic = Lea
	in.Operands = []Operand{rm.G(c, w), rm.E(c, w)}
	return true
}

func opMOV_Eb_Ib(c *cursor, in *Instruction) bool {
	rm := c.modRM()
	if rm.reg != 0 {
		return false
	}
	in.Mnemonic = Mov
	in.Operands = []Operand{rm.E(c, 8), ImmOperand(int64(c.u8()), 8)}
	return true
}

func opMOV_Ev_Iz(c *cursor, in *Instruction) bool {
	w := c.opWidth()
	rm := c.modRM()
	if rm.reg != 0 {
		return false
	}
	in.Mnemonic = Mov
	in.Operands = []Operand{rm.E(c, w), ImmOperand(c.imm(4), w)}
	return true
}

func imulImm(size int) decodeFn {
	return func(c *cursor, in *Instruction) bool {
		w := c.opWidth()
		rm := c.modRM()
		in.Mnemonic = Imul
		in.Operands = []Operand{rm.G(c, w), rm.E(c, w), ImmOperand(c.imm(size), uint8(8*size))}
		return true
	}
}

var group1Ops = [8]Mnemonic{0: Add, 1: Or, 4: And, 5: Sub, 6: Xor}

// group1 decodes 0x81/0x83: arithmetic with a sign-extended immediate.
func group1(size int) decodeFn {
	return func(c *cursor, in *Instruction) bool {
		w := c.opWidth()
		rm := c.modRM()
		m := group1Ops[rm.reg]
		if m == Invalid {
			return false
		}
		in.Mnemonic = m
		in.Operands = []Operand{rm.E(c, w), ImmOperand(c.imm(size), w)}
		return true
	}
}

type shiftCount uint8

const (
	countImm8 shiftCount = iota
	countOne
	countCL
)

var group2Ops = [8]Mnemonic{4: Shl, 5: Shr, 7: Sar}

// group2 decodes the shift group.
func group2(count shiftCount) decodeFn {
	return func(c *cursor, in *Instruction) bool {
		w := c.opWidth()
		rm := c.modRM()
		m := group2Ops[rm.reg]
		if m == Invalid {
			return false
		}
		var src Operand
		switch count {
		case countImm8:
			src = ImmOperand(int64(c.u8()), 8)
		case countOne:
			src = ImmOperand(1, 8)
		case countCL:
			src = RegOperand(RCX, 8)
		}
		in.Mnemonic = m
		in.Operands = []Operand{rm.E(c, w), src}
		return true
	}
}

// group5 decodes the indirect call/jmp forms of 0xFF.
func group5(c *cursor, in *Instruction) bool {
	rm := c.modRM()
	switch rm.reg {
	case 2:
		in.Mnemonic = Call
	case 4:
		in.Mnemonic = Jmp
	default:
		return false
	}
	in.Operands = []Operand{rm.E(c, 64)}
	return true
}

func movzx(srcWidth uint8) decodeFn {
	return func(c *cursor, in *Instruction) bool {
		w := c.opWidth()
		rm := c.modRM()
		in.Mnemonic = Movzx
		in.Operands = []Operand{rm.G(c, w), rm.E(c, srcWidth)}
		return true
	}
}

// opNOP_Ev consumes the operand encoding of SSE moves and the multi-byte
// nop so the length is right; they execute as nop.
func opNOP_Ev(c *cursor, in *Instruction) bool {
	c.modRM()
	in.Mnemonic = Nop
	return true
}
