// Package msvcrt provides C runtime stubs for msvcrt.dll, ucrtbase.dll and
// the api-ms-win-crt forwarders: console output, string and memory
// helpers, a bump heap and process exit.
package msvcrt

import (
	"fmt"
	"strings"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/stubs"
	"github.com/JohnDoe6345789/winejs/internal/winstr"
)

// DLLs lists the modules that export the C runtime.
var DLLs = []string{
	"msvcrt.dll",
	"ucrtbase.dll",
	"api-ms-win-crt-stdio-l1-1-0.dll",
	"api-ms-win-crt-string-l1-1-0.dll",
	"api-ms-win-crt-heap-l1-1-0.dll",
	"api-ms-win-crt-runtime-l1-1-0.dll",
}

func init() {
	stubs.RegisterFunc("stdio", DLLs, "printf", stubPrintf)
	stubs.RegisterFunc("stdio", DLLs, "vprintf", stubVprintf)
	stubs.RegisterFunc("stdio", DLLs, "fprintf", stubFprintf)
	stubs.RegisterFunc("stdio", DLLs, "vfprintf", stubVfprintf)
	stubs.RegisterFunc("stdio", DLLs, "sprintf", stubSprintf)
	stubs.RegisterFunc("stdio", DLLs, "vsprintf", stubVsprintf)
	stubs.RegisterFunc("stdio", DLLs, "snprintf", stubSnprintf, "_snprintf")
	stubs.RegisterFunc("stdio", DLLs, "vsnprintf", stubVsnprintf, "_vsnprintf")
	stubs.RegisterFunc("stdio", DLLs, "puts", stubPuts)
	stubs.RegisterFunc("stdio", DLLs, "fputs", stubFputs)
	stubs.RegisterFunc("stdio", DLLs, "putchar", stubPutchar)
	stubs.RegisterFunc("stdio", DLLs, "fflush", stubFflush)
}

const stdoutKey = "msvcrt.stdout"

// stdout buffers output until a newline completes a console line.
type stdout struct {
	pending string
}

func console(s *stubs.Session) *stdout {
	return s.State(stdoutKey, func() any { return &stdout{} }).(*stdout)
}

// emit prints every completed line in text and keeps the remainder.
func emit(s *stubs.Session, call *emulator.ImportCall, text string) {
	out := console(s)
	buf := out.pending + text
	for {
		i := strings.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		printLine(s, call, buf[:i])
		buf = buf[i+1:]
	}
	out.pending = buf
}

// flush prints a trailing partial line.
func flush(s *stubs.Session, call *emulator.ImportCall) {
	out := console(s)
	if out.pending != "" {
		printLine(s, call, out.pending)
		out.pending = ""
	}
}

func printLine(s *stubs.Session, call *emulator.ImportCall, line string) {
	line = strings.TrimRight(line, "\r")
	if s.Config.Console.Enabled && strings.TrimSpace(line) != "" {
		call.Print(line)
	}
}

func guestString(cpu *emulator.CPU) StringReader {
	return func(addr uint64, max int, wide bool) string {
		if wide {
			return winstr.ReadWide(cpu.Memory(), addr, orDefault(max, winstr.MaxWideChars))
		}
		return winstr.ReadANSI(cpu.Memory(), addr, orDefault(max, winstr.MaxANSIBytes))
	}
}

func orDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// args yields variadic arguments starting at index first.
func args(call *emulator.ImportCall, first int) func() uint64 {
	i := first
	return func() uint64 {
		v := call.Arg(i)
		i++
		return v
	}
}

// vaList yields arguments from a Win64 va_list, a pointer to consecutive
// 8-byte slots.
func vaList(cpu *emulator.CPU, ap uint64) func() uint64 {
	return func() uint64 {
		v := cpu.Memory().ReadU64(ap)
		ap += 8
		return v
	}
}

func format(cpu *emulator.CPU, fmtPtr uint64, next func() uint64) string {
	f := winstr.ReadANSI(cpu.Memory(), fmtPtr, winstr.MaxANSIBytes)
	return Format(f, next, guestString(cpu))
}

func printed(s *stubs.Session, call *emulator.ImportCall, text string) emulator.HookOutcome {
	emit(s, call, text)
	s.Trace("stdio", stubs.Quote(text))
	return emulator.Handled(uint64(len(text)))
}

// int printf(const char *format, ...)
func stubPrintf(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	return printed(s, call, format(cpu, call.Arg(0), args(call, 1)))
}

// int vprintf(const char *format, va_list ap)
func stubVprintf(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	return printed(s, call, format(cpu, call.Arg(0), vaList(cpu, call.Arg(1))))
}

// int fprintf(FILE *stream, const char *format, ...)
// Every stream is treated as the console.
func stubFprintf(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	return printed(s, call, format(cpu, call.Arg(1), args(call, 2)))
}

// int vfprintf(FILE *stream, const char *format, va_list ap)
func stubVfprintf(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	return printed(s, call, format(cpu, call.Arg(1), vaList(cpu, call.Arg(2))))
}

// storeString writes text and a NUL terminator to dst, truncated to fit n
// bytes when n >= 0.
func storeString(cpu *emulator.CPU, dst uint64, text string, n int) {
	if n == 0 || dst == 0 {
		return
	}
	if n > 0 && len(text) >= n {
		text = text[:n-1]
	}
	cpu.Memory().WriteBytes(dst, append([]byte(text), 0))
}

func formatted(s *stubs.Session, cpu *emulator.CPU, dst uint64, n int, text string) emulator.HookOutcome {
	storeString(cpu, dst, text, n)
	s.Trace("stdio", fmt.Sprintf("%s -> %s", stubs.FormatHex(dst), stubs.Quote(text)))
	return emulator.Handled(uint64(len(text)))
}

// int sprintf(char *buf, const char *format, ...)
func stubSprintf(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	return formatted(s, cpu, call.Arg(0), -1, format(cpu, call.Arg(1), args(call, 2)))
}

// int vsprintf(char *buf, const char *format, va_list ap)
func stubVsprintf(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	return formatted(s, cpu, call.Arg(0), -1, format(cpu, call.Arg(1), vaList(cpu, call.Arg(2))))
}

// int snprintf(char *buf, size_t n, const char *format, ...)
func stubSnprintf(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	return formatted(s, cpu, call.Arg(0), int(call.Arg(1)), format(cpu, call.Arg(2), args(call, 3)))
}

// int vsnprintf(char *buf, size_t n, const char *format, va_list ap)
func stubVsnprintf(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	return formatted(s, cpu, call.Arg(0), int(call.Arg(1)), format(cpu, call.Arg(2), vaList(cpu, call.Arg(3))))
}

// int puts(const char *s)
func stubPuts(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	text := winstr.ReadANSI(cpu.Memory(), call.Arg(0), winstr.MaxANSIBytes)
	emit(s, call, text+"\n")
	s.Trace("stdio", stubs.Quote(text))
	return emulator.Handled(0)
}

// int fputs(const char *s, FILE *stream)
func stubFputs(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	text := winstr.ReadANSI(cpu.Memory(), call.Arg(0), winstr.MaxANSIBytes)
	emit(s, call, text)
	s.Trace("stdio", stubs.Quote(text))
	return emulator.Handled(0)
}

// int putchar(int c)
func stubPutchar(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	c := byte(call.Arg(0))
	emit(s, call, string(rune(c)))
	return emulator.Handled(uint64(c))
}

// int fflush(FILE *stream)
func stubFflush(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	flush(s, call)
	return emulator.Handled(0)
}
