package msvcrt

import (
	"fmt"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/stubs"
)

// ProgramName is argv[0] as seen by the guest.
const ProgramName = "program.exe"

func init() {
	stubs.RegisterFunc("process", DLLs, "exit", stubExit, "_exit", "_Exit")
	stubs.RegisterFunc("process", DLLs, "abort", stubAbort)
	stubs.RegisterFunc("runtime", DLLs, "atexit", stubZero, "_onexit")
	stubs.RegisterFunc("runtime", DLLs, "__set_app_type", stubZero, "_set_app_type")
	stubs.RegisterFunc("runtime", DLLs, "_initterm", stubZero, "_initterm_e")
	stubs.RegisterFunc("runtime", DLLs, "_cexit", stubZero)
	stubs.RegisterFunc("runtime", DLLs, "__getmainargs", stubGetMainArgs)
}

func terminate(s *stubs.Session, call *emulator.ImportCall, code uint32) {
	flush(s, call)
	s.Exited = true
	s.ExitCode = code
	call.Stop()
	s.Trace("process", fmt.Sprintf("code=%d", code))
}

// void exit(int status)
func stubExit(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	terminate(s, call, uint32(call.Arg(0)))
	return emulator.Handled(0)
}

// void abort(void)
func stubAbort(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	terminate(s, call, 3)
	return emulator.Handled(0)
}

// Startup hooks that only need to report success. Initializer tables
// passed to _initterm are not run.
func stubZero(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	return emulator.Handled(0)
}

// int __getmainargs(int *argc, char ***argv, char ***envp, int glob, void *si)
func stubGetMainArgs(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	mem := cpu.Memory()
	h := HeapOf(s)

	name := h.Alloc(uint64(len(ProgramName) + 1))
	mem.WriteBytes(name, append([]byte(ProgramName), 0))
	argv := h.Alloc(16) // argv[0], NULL
	mem.WriteU64(argv, name)
	envp := h.Alloc(8) // NULL

	if p := call.Arg(0); p != 0 {
		mem.WriteU32(p, 1)
	}
	if p := call.Arg(1); p != 0 {
		mem.WriteU64(p, argv)
	}
	if p := call.Arg(2); p != 0 {
		mem.WriteU64(p, envp)
	}
	s.Trace("runtime", stubs.FormatPtrPair("argv", argv, "envp", envp))
	return emulator.Handled(0)
}
