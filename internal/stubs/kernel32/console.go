// Package kernel32 provides stubs for the console, file and process parts
// of kernel32.dll.
package kernel32

import (
	"fmt"
	"strings"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/stubs"
	"github.com/JohnDoe6345789/winejs/internal/winstr"
)

// DLLs lists the modules these stubs bind to.
var DLLs = []string{"kernel32.dll", "kernelbase.dll"}

// Pseudo handles returned by GetStdHandle.
const (
	StdInputHandle  = 0x3
	StdOutputHandle = 0x7
	StdErrorHandle  = 0xB

	invalidHandleValue = ^uint64(0)
	errorInvalidHandle = 6
)

func init() {
	stubs.RegisterFunc("kernel32", DLLs, "WriteConsoleA", stubWriteConsoleA)
	stubs.RegisterFunc("kernel32", DLLs, "WriteConsoleW", stubWriteConsoleW)
	stubs.RegisterFunc("kernel32", DLLs, "WriteFile", stubWriteFile)
	stubs.RegisterFunc("kernel32", DLLs, "GetStdHandle", stubGetStdHandle)
}

// printLines appends each non-blank line of text to the console output.
func printLines(s *stubs.Session, call *emulator.ImportCall, text string) int {
	if !s.Config.Console.Enabled {
		return 0
	}
	n := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		call.Print(line)
		n++
	}
	return n
}

// storeWritten writes count to the optional DWORD out-pointer.
func storeWritten(cpu *emulator.CPU, ptr uint64, count uint32) {
	if ptr != 0 {
		cpu.Memory().WriteU32(ptr, count)
	}
}

// BOOL WriteConsoleA(HANDLE, const VOID *lpBuffer, DWORD n, LPDWORD written, LPVOID)
func stubWriteConsoleA(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	buf, count := call.Arg(1), uint32(call.Arg(2))
	text := winstr.ReadANSI(cpu.Memory(), buf, int(count))
	lines := printLines(s, call, text)
	storeWritten(cpu, call.Arg(3), count)
	s.Trace("console", fmt.Sprintf("%s n=%d lines=%d", stubs.Quote(text), count, lines))
	return emulator.Handled(1)
}

// BOOL WriteConsoleW(HANDLE, const VOID *lpBuffer, DWORD nChars, LPDWORD written, LPVOID)
func stubWriteConsoleW(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	buf, count := call.Arg(1), uint32(call.Arg(2))
	text := winstr.ReadWide(cpu.Memory(), buf, int(count))
	lines := printLines(s, call, text)
	storeWritten(cpu, call.Arg(3), count)
	s.Trace("console", fmt.Sprintf("%s n=%d lines=%d", stubs.Quote(text), count, lines))
	return emulator.Handled(1)
}

// BOOL WriteFile(HANDLE, LPCVOID buf, DWORD n, LPDWORD written, LPOVERLAPPED)
// Only the standard output handles are emulated.
func stubWriteFile(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	h := call.Arg(0)
	if h != StdOutputHandle && h != StdErrorHandle {
		return emulator.NotHandled()
	}
	count := uint32(call.Arg(2))
	if count == 0 {
		storeWritten(cpu, call.Arg(3), 0)
		return emulator.Handled(1)
	}
	text := winstr.ReadANSI(cpu.Memory(), call.Arg(1), int(count))
	printLines(s, call, text)
	storeWritten(cpu, call.Arg(3), count)
	s.Trace("console", fmt.Sprintf("%s %s n=%d", stubs.FormatPtr("h", h), stubs.Quote(text), count))
	return emulator.Handled(1)
}

// HANDLE GetStdHandle(DWORD nStdHandle)
func stubGetStdHandle(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	var h uint64
	switch int32(call.Arg(0)) {
	case -10:
		h = StdInputHandle
	case -11:
		h = StdOutputHandle
	case -12:
		h = StdErrorHandle
	default:
		s.LastError = errorInvalidHandle
		h = invalidHandleValue
	}
	s.Trace("kernel32", stubs.FormatPtr("handle", h))
	return emulator.Handled(h)
}
