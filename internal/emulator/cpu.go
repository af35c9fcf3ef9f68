// Package emulator implements a small x86-64 interpreter that executes a
// PE32+ image in place and hands calls through the import address table
// to host hooks.
package emulator

import (
	"fmt"

	"github.com/JohnDoe6345789/winejs/internal/log"
	"github.com/JohnDoe6345789/winejs/internal/pe"
	"go.uber.org/zap"
)

const (
	// InitialStackPointer is rsp after Reset. The stack lives entirely in
	// the write overlay.
	InitialStackPointer = 0x100000000

	// DefaultMaxSteps bounds Run when no budget is given.
	DefaultMaxSteps = 50_000
)

// Flags holds the condition flags the interpreter models.
type Flags struct {
	ZF bool
	SF bool
}

// CodeHookFunc is called before each instruction executes.
type CodeHookFunc func(cpu *CPU, in *Instruction)

// CPU is the register file, flags and memory of one guest thread.
// It is not safe for concurrent use.
type CPU struct {
	img   *pe.Image
	mem   *Memory
	dec   *Decoder
	regs  [NumRegisters]uint64
	rip   uint64
	flags Flags

	log       *log.Logger
	codeHooks []CodeHookFunc
	thunks    bool
}

// Option configures a CPU.
type Option func(*CPU)

// WithLogger sets the logger used for import and fault messages.
func WithLogger(l *log.Logger) Option {
	return func(c *CPU) { c.log = l }
}

// WithJumpThunks makes a handled jmp through the IAT return to the caller
// by popping the return address, as an import thunk would. By default a
// handled jmp resumes at the next instruction like a handled call.
func WithJumpThunks() Option {
	return func(c *CPU) { c.thunks = true }
}

// New creates a CPU positioned at the image entry point.
func New(img *pe.Image, opts ...Option) *CPU {
	mem := NewMemory(img)
	c := &CPU{
		img: img,
		mem: mem,
		dec: NewDecoder(mem),
		log: log.L,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Reset()
	return c
}

// Reset restores the initial register state and discards memory writes.
func (c *CPU) Reset() {
	c.regs = [NumRegisters]uint64{}
	c.regs[RSP] = InitialStackPointer
	c.rip = c.img.EntryPoint()
	c.flags = Flags{}
	c.mem.Reset()
}

func (c *CPU) Image() *pe.Image    { return c.img }
func (c *CPU) Memory() *Memory     { return c.mem }
func (c *CPU) Decoder() *Decoder   { return c.dec }
func (c *CPU) RIP() uint64         { return c.rip }
func (c *CPU) SetRIP(addr uint64)  { c.rip = addr }
func (c *CPU) Flags() Flags        { return c.flags }
func (c *CPU) SetFlags(f Flags)    { c.flags = f }
func (c *CPU) Logger() *log.Logger { return c.log }

// HookCode registers fn to run before every instruction.
func (c *CPU) HookCode(fn CodeHookFunc) {
	c.codeHooks = append(c.codeHooks, fn)
}

// Reg reads r at width bits.
func (c *CPU) Reg(r Register, width uint8) uint64 {
	switch {
	case r.IsHighByte():
		return c.regs[r.Host()] >> 8 & 0xFF
	case r >= NumRegisters:
		return 0
	}
	return Mask(c.regs[r], width)
}

// SetReg writes r at width bits. 32-bit writes clear the upper half of the
// host register; 8- and 16-bit writes leave the other bits alone.
func (c *CPU) SetReg(r Register, width uint8, v uint64) {
	switch {
	case r.IsHighByte():
		h := r.Host()
		c.regs[h] = c.regs[h]&^0xFF00 | (v&0xFF)<<8
	case r >= NumRegisters:
	case width == 8 || width == 16:
		m := Mask(^uint64(0), width)
		c.regs[r] = c.regs[r]&^m | v&m
	case width == 32:
		c.regs[r] = v & 0xFFFFFFFF
	default:
		c.regs[r] = v
	}
}

// ReadRegister reads a register by name ("rax", "r8d", "cl", ...).
func (c *CPU) ReadRegister(name string) (uint64, error) {
	r, w, ok := ParseRegister(name)
	if !ok {
		return 0, fmt.Errorf("unknown register %q", name)
	}
	return c.Reg(r, w), nil
}

// WriteRegister writes a register by name with width semantics.
func (c *CPU) WriteRegister(name string, v uint64) error {
	r, w, ok := ParseRegister(name)
	if !ok {
		return fmt.Errorf("unknown register %q", name)
	}
	c.SetReg(r, w, v)
	return nil
}

// Push stores v in a new 8-byte stack slot.
func (c *CPU) Push(v uint64) {
	c.regs[RSP] -= 8
	c.mem.WriteU64(c.regs[RSP], v)
}

// Pop removes and returns the top 8-byte stack slot.
func (c *CPU) Pop() uint64 {
	v := c.mem.ReadU64(c.regs[RSP])
	c.regs[RSP] += 8
	return v
}

// RunOptions controls Run.
type RunOptions struct {
	// MaxSteps bounds the number of executed instructions. Zero means
	// DefaultMaxSteps.
	MaxSteps int
	Hooks    ImportHooks

	// OnStep runs before each instruction of this run, after the hooks
	// registered with HookCode.
	OnStep CodeHookFunc
}

// RunResult summarizes a run.
type RunResult struct {
	ConsoleOutput  []string
	ImportsVisited []pe.ImportSymbol
	Steps          int
	Halted         bool // hlt executed
	Stopped        bool // a hook called Stop

	// BudgetExhausted is set when Run returned because Steps reached
	// MaxSteps.
	BudgetExhausted bool
}

// Exhausted reports whether the run ended on the step budget.
func (r *RunResult) Exhausted() bool {
	return r.BudgetExhausted
}

// Run executes from the current rip until hlt, a hook stop, an error or
// the step budget. The partial result is returned alongside any error.
func (c *CPU) Run(opts RunOptions) (*RunResult, error) {
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	x := c.Start(opts.Hooks)
	x.onStep = opts.OnStep
	for !x.Done() && x.result.Steps < maxSteps {
		if _, err := x.Step(); err != nil {
			return &x.result, err
		}
	}
	x.result.BudgetExhausted = !x.Done()
	return &x.result, nil
}

// Step executes exactly one instruction from the current rip and returns
// its result. Stepping a halted CPU executes the hlt again.
func (c *CPU) Step(hooks ImportHooks) (*RunResult, error) {
	x := c.Start(hooks)
	_, err := x.Step()
	return &x.result, err
}

// Execution is an in-progress run that can be advanced one instruction at
// a time.
type Execution struct {
	cpu     *CPU
	hooks   ImportHooks
	onStep  CodeHookFunc
	result  RunResult
	stopped bool
	err     error
}

// Start begins a resumable run from the current rip.
func (c *CPU) Start(hooks ImportHooks) *Execution {
	return &Execution{cpu: c, hooks: hooks}
}

// Done reports whether the run has halted, stopped or failed.
func (x *Execution) Done() bool {
	return x.result.Halted || x.result.Stopped || x.err != nil
}

// Err returns the error that ended the run, if any.
func (x *Execution) Err() error {
	return x.err
}

// Result returns the accumulated result.
func (x *Execution) Result() *RunResult {
	return &x.result
}

// Step decodes and executes one instruction and returns it.
func (x *Execution) Step() (*Instruction, error) {
	if x.err != nil {
		return nil, x.err
	}
	if x.Done() {
		return nil, nil
	}

	c := x.cpu
	in, err := c.dec.Decode(c.rip)
	if err != nil {
		x.fail(err)
		return nil, err
	}
	for _, fn := range c.codeHooks {
		fn(c, in)
	}
	if x.onStep != nil {
		x.onStep(c, in)
	}

	act, err := c.execute(in, x)
	if err != nil {
		x.fail(err)
		return in, err
	}
	x.result.Steps++

	switch act {
	case actNext:
		c.rip = in.Next()
	case actHalt:
		x.result.Halted = true
	}
	if x.stopped {
		x.result.Stopped = true
	}
	return in, nil
}

func (x *Execution) fail(err error) {
	x.err = err
	x.cpu.log.Debug("run aborted",
		log.Addr(x.cpu.rip),
		zap.Int("steps", x.result.Steps),
		zap.Error(err),
	)
}
