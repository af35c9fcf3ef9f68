package kernel32

import (
	"fmt"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/stubs"
)

func init() {
	stubs.RegisterFunc("process", DLLs, "ExitProcess", stubExitProcess)
	stubs.RegisterFunc("kernel32", DLLs, "GetLastError", stubGetLastError)
	stubs.RegisterFunc("kernel32", DLLs, "SetLastError", stubSetLastError)
}

// void ExitProcess(UINT uExitCode)
func stubExitProcess(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	s.Exited = true
	s.ExitCode = uint32(call.Arg(0))
	call.Stop()
	s.Trace("process", fmt.Sprintf("code=%d", s.ExitCode))
	return emulator.Handled(0)
}

func stubGetLastError(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	return emulator.Handled(uint64(s.LastError))
}

func stubSetLastError(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	s.LastError = uint32(call.Arg(0))
	return emulator.Handled(0)
}
