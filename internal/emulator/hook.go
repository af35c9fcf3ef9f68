package emulator

import (
	"github.com/JohnDoe6345789/winejs/internal/pe"
)

// HookOutcome is the result of offering an import call to a hook: either
// NotHandled, or Handled with the value the import returns in rax.
type HookOutcome struct {
	handled bool
	rax     uint64
}

// NotHandled declines the call. The CPU then performs an ordinary
// indirect transfer to the IAT target.
func NotHandled() HookOutcome {
	return HookOutcome{}
}

// Handled completes the call with rax as its return value.
func Handled(rax uint64) HookOutcome {
	return HookOutcome{handled: true, rax: rax}
}

// IsHandled reports whether the hook completed the call.
func (o HookOutcome) IsHandled() bool {
	return o.handled
}

// RAX returns the return value and whether the call was handled.
func (o HookOutcome) RAX() (uint64, bool) {
	return o.rax, o.handled
}

// ImportHooks receives every call or jump that lands on an IAT entry.
// name is the qualified "dll!Symbol" form with a lower-cased DLL.
type ImportHooks interface {
	HandleImport(name string, cpu *CPU, call *ImportCall) HookOutcome
}

// ImportHookFunc adapts a function to ImportHooks.
type ImportHookFunc func(name string, cpu *CPU, call *ImportCall) HookOutcome

func (f ImportHookFunc) HandleImport(name string, cpu *CPU, call *ImportCall) HookOutcome {
	return f(name, cpu, call)
}

type chain []ImportHooks

func (hs chain) HandleImport(name string, cpu *CPU, call *ImportCall) HookOutcome {
	for _, h := range hs {
		if out := h.HandleImport(name, cpu, call); out.IsHandled() {
			return out
		}
	}
	return NotHandled()
}

// Chain offers each call to hooks in order; the first handled outcome wins.
// Nil entries are skipped.
func Chain(hooks ...ImportHooks) ImportHooks {
	var hs chain
	for _, h := range hooks {
		if h != nil {
			hs = append(hs, h)
		}
	}
	return hs
}

// ImportCall describes one intercepted import call.
type ImportCall struct {
	Symbol pe.ImportSymbol
	Slot   uint64 // IAT slot VA
	Site   uint64 // address of the call or jmp instruction
	Return uint64 // next instruction after the call or jmp
	Jump   bool   // reached through a jmp
	Thunk  bool   // the caller's return address is on the stack
	Step   int

	cpu  *CPU
	exec *Execution
}

// Name returns the qualified import name.
func (ic *ImportCall) Name() string {
	return ic.Symbol.Qualified()
}

// Print appends a line to the run's console output.
func (ic *ImportCall) Print(line string) {
	ic.exec.result.ConsoleOutput = append(ic.exec.result.ConsoleOutput, line)
}

// Stop ends the run once the current instruction completes.
func (ic *ImportCall) Stop() {
	ic.exec.stopped = true
}

var argRegisters = [4]Register{RCX, RDX, R8, R9}

// Arg returns the i-th integer argument under the Win64 calling
// convention: rcx, rdx, r8, r9, then the stack above the shadow space.
func (ic *ImportCall) Arg(i int) uint64 {
	if i < len(argRegisters) {
		return ic.cpu.regs[argRegisters[i]]
	}
	base := ic.cpu.regs[RSP] + 0x20
	if ic.Thunk {
		// The caller's return address is already on the stack.
		base += 8
	}
	return ic.cpu.mem.ReadU64(base + 8*uint64(i-len(argRegisters)))
}
