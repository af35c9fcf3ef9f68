package emulator

import (
	"github.com/JohnDoe6345789/winejs/internal/log"
	"github.com/JohnDoe6345789/winejs/internal/pe"
	"go.uber.org/zap"
)

type action uint8

const (
	actNext action = iota // fall through to the next instruction
	actJump               // rip already updated
	actHalt
)

func (c *CPU) execute(in *Instruction, x *Execution) (action, error) {
	if len(in.Operands) < operandCount(in) {
		return 0, &ExecError{Address: in.Address, Mnemonic: in.Mnemonic, Reason: "missing operands"}
	}

	switch in.Mnemonic {
	case Nop:
		return actNext, nil
	case Hlt:
		return actHalt, nil
	case Mov:
		c.write(in, in.Operands[0], c.read(in, in.Operands[1]))
		return actNext, nil
	case Lea:
		src := in.Operands[1]
		if src.Kind != OperandMemory {
			return 0, &ExecError{Address: in.Address, Mnemonic: Lea, Reason: "register source"}
		}
		c.write(in, in.Operands[0], c.effectiveAddress(in, src.Mem))
		return actNext, nil
	case Add, Sub, And, Or, Xor, Cmp, Test:
		c.arith(in)
		return actNext, nil
	case Imul:
		c.imul(in)
		return actNext, nil
	case Shl, Shr, Sar:
		c.shift(in)
		return actNext, nil
	case Movzx:
		dst := in.Operands[0]
		v := c.read(in, in.Operands[1])
		c.write(in, dst, v)
		c.setFlags(v, dst.Width)
		return actNext, nil
	case Push:
		c.Push(c.read(in, in.Operands[0]))
		return actNext, nil
	case Pop:
		c.write(in, in.Operands[0], c.Pop())
		return actNext, nil
	case Call:
		return c.call(in, x), nil
	case Jmp:
		return c.jump(in, x), nil
	case Je, Jne:
		if c.flags.ZF == (in.Mnemonic == Je) {
			c.rip = in.Target()
			return actJump, nil
		}
		return actNext, nil
	case Ret:
		c.rip = c.Pop()
		return actJump, nil
	case Invalid, numMnemonics:
	}
	return 0, &ExecError{Address: in.Address, Mnemonic: in.Mnemonic}
}

// operandCount is the number of explicit operands execution relies on.
func operandCount(in *Instruction) int {
	switch in.Mnemonic {
	case Mov, Lea, Add, Sub, And, Or, Xor, Cmp, Test, Imul, Shl, Shr, Sar, Movzx:
		return 2
	case Push, Pop:
		return 1
	case Call, Jmp:
		if !in.HasRel {
			return 1
		}
	}
	return 0
}

func (c *CPU) effectiveAddress(in *Instruction, m MemRef) uint64 {
	if m.RIPRelative {
		return in.Next() + uint64(int64(m.Disp))
	}
	var addr uint64
	if m.Base != RegNone {
		addr = c.Reg(m.Base, 64)
	}
	if m.Index != RegNone {
		addr += c.Reg(m.Index, 64) * uint64(m.Scale)
	}
	return addr + uint64(int64(m.Disp))
}

// read returns op's value masked to its width.
func (c *CPU) read(in *Instruction, op Operand) uint64 {
	switch op.Kind {
	case OperandRegister:
		return c.Reg(op.Reg, op.Width)
	case OperandImmediate:
		return Mask(uint64(op.Imm), op.Width)
	case OperandMemory:
		return c.mem.ReadUint(c.effectiveAddress(in, op.Mem), int(op.Width/8))
	}
	return 0
}

func (c *CPU) write(in *Instruction, op Operand, v uint64) {
	switch op.Kind {
	case OperandRegister:
		c.SetReg(op.Reg, op.Width, v)
	case OperandMemory:
		c.mem.WriteUint(c.effectiveAddress(in, op.Mem), int(op.Width/8), v)
	}
}

func (c *CPU) setFlags(result uint64, width uint8) {
	result = Mask(result, width)
	c.flags.ZF = result == 0
	c.flags.SF = signBit(result, width)
}

func (c *CPU) arith(in *Instruction) {
	dst := in.Operands[0]
	a := c.read(in, dst)
	b := Mask(c.read(in, in.Operands[1]), dst.Width)

	var r uint64
	switch in.Mnemonic {
	case Add:
		r = a + b
	case Sub, Cmp:
		r = a - b
	case And, Test:
		r = a & b
	case Or:
		r = a | b
	case Xor:
		r = a ^ b
	}
	r = Mask(r, dst.Width)

	if in.Mnemonic != Cmp && in.Mnemonic != Test {
		c.write(in, dst, r)
	}
	c.setFlags(r, dst.Width)
}

func (c *CPU) imul(in *Instruction) {
	dst := in.Operands[0]
	w := dst.Width

	var a, b int64
	if len(in.Operands) == 3 {
		a = SignExtend(c.read(in, in.Operands[1]), w)
		b = in.Operands[2].Imm
	} else {
		a = SignExtend(c.read(in, dst), w)
		b = SignExtend(c.read(in, in.Operands[1]), w)
	}
	r := Mask(uint64(a*b), w)
	c.write(in, dst, r)
	c.setFlags(r, w)
}

func (c *CPU) shift(in *Instruction) {
	dst := in.Operands[0]
	w := dst.Width
	count := c.read(in, in.Operands[1])
	if w == 64 {
		count &= 0x3F
	} else {
		count &= 0x1F
	}

	v := c.read(in, dst)
	var r uint64
	switch in.Mnemonic {
	case Shl:
		r = v << count
	case Shr:
		r = v >> count
	case Sar:
		r = uint64(SignExtend(v, w) >> count)
	}
	r = Mask(r, w)
	c.write(in, dst, r)
	c.setFlags(r, w)
}

// indirectTarget resolves the destination of an indirect call or jmp and
// the import it reaches, if any. An import matches when the memory operand
// addresses an IAT slot, or when the target value itself is a slot address.
func (c *CPU) indirectTarget(in *Instruction) (target, slot uint64, sym pe.ImportSymbol, isImport bool) {
	op := in.Operands[0]
	switch op.Kind {
	case OperandMemory:
		ea := c.effectiveAddress(in, op.Mem)
		target = c.mem.ReadU64(ea)
		if sym, ok := c.img.ImportAt(ea); ok {
			return target, ea, sym, true
		}
	default:
		target = c.read(in, op)
	}
	if sym, ok := c.img.ImportAt(target); ok {
		return target, target, sym, true
	}
	return target, 0, pe.ImportSymbol{}, false
}

func (c *CPU) call(in *Instruction, x *Execution) action {
	if in.HasRel {
		c.Push(in.Next())
		c.rip = in.Target()
		return actJump
	}

	target, slot, sym, isImport := c.indirectTarget(in)
	if isImport {
		if rax, ok := c.dispatchImport(in, x, sym, slot, false).RAX(); ok {
			c.regs[RAX] = rax
			c.rip = in.Next()
			return actJump
		}
	}
	c.Push(in.Next())
	c.rip = target
	return actJump
}

func (c *CPU) jump(in *Instruction, x *Execution) action {
	if in.HasRel {
		c.rip = in.Target()
		return actJump
	}

	target, slot, sym, isImport := c.indirectTarget(in)
	if isImport {
		if rax, ok := c.dispatchImport(in, x, sym, slot, true).RAX(); ok {
			c.regs[RAX] = rax
			if c.thunks {
				c.rip = c.Pop()
			} else {
				c.rip = in.Next()
			}
			return actJump
		}
	}
	c.rip = target
	return actJump
}

func (c *CPU) dispatchImport(in *Instruction, x *Execution, sym pe.ImportSymbol, slot uint64, jump bool) HookOutcome {
	x.result.ImportsVisited = append(x.result.ImportsVisited, sym)
	if x.hooks == nil {
		return NotHandled()
	}

	ic := &ImportCall{
		Symbol: sym,
		Slot:   slot,
		Site:   in.Address,
		Return: in.Next(),
		Jump:   jump,
		Thunk:  jump && c.thunks,
		Step:   x.result.Steps,
		cpu:    c,
		exec:   x,
	}
	out := x.hooks.HandleImport(sym.Qualified(), c, ic)

	rax, handled := out.RAX()
	c.log.Debug("import",
		zap.String("fn", sym.Qualified()),
		log.Addr(in.Address),
		zap.Bool("handled", handled),
		log.Ptr("rax", rax),
	)
	return out
}
