package msvcrt

import (
	"bytes"
	"fmt"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/stubs"
	"github.com/JohnDoe6345789/winejs/internal/winstr"
)

// maxCopy bounds memcpy-style operations.
const maxCopy = 0x100000

func init() {
	stubs.RegisterFunc("string", DLLs, "strlen", stubStrlen)
	stubs.RegisterFunc("string", DLLs, "strcmp", stubStrcmp)
	stubs.RegisterFunc("string", DLLs, "strncmp", stubStrncmp)
	stubs.RegisterFunc("string", DLLs, "strcpy", stubStrcpy)
	stubs.RegisterFunc("string", DLLs, "strncpy", stubStrncpy)
	stubs.RegisterFunc("string", DLLs, "strcat", stubStrcat)
	stubs.RegisterFunc("string", DLLs, "strchr", stubStrchr)
	stubs.RegisterFunc("string", DLLs, "memcpy", stubMemmove, "memmove")
	stubs.RegisterFunc("string", DLLs, "memset", stubMemset)
	stubs.RegisterFunc("string", DLLs, "memcmp", stubMemcmp)
}

// cstring returns the raw bytes of the NUL-terminated string at addr.
func cstring(mem *emulator.Memory, addr uint64, max int) []byte {
	var out []byte
	for i := 0; i < max; i++ {
		b := mem.ByteAt(addr + uint64(i))
		if b == 0 {
			break
		}
		out = append(out, b)
	}
	return out
}

func sign(n int) uint64 {
	return uint64(int64(n))
}

// size_t strlen(const char *s)
func stubStrlen(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	n := len(cstring(cpu.Memory(), call.Arg(0), winstr.MaxANSIBytes))
	s.Trace("string", stubs.FormatPtr("len", uint64(n)))
	return emulator.Handled(uint64(n))
}

// int strcmp(const char *a, const char *b)
func stubStrcmp(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	a := cstring(cpu.Memory(), call.Arg(0), winstr.MaxANSIBytes)
	b := cstring(cpu.Memory(), call.Arg(1), winstr.MaxANSIBytes)
	return emulator.Handled(sign(bytes.Compare(a, b)))
}

// int strncmp(const char *a, const char *b, size_t n)
func stubStrncmp(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	n := int(min(call.Arg(2), winstr.MaxANSIBytes))
	a := cstring(cpu.Memory(), call.Arg(0), n)
	b := cstring(cpu.Memory(), call.Arg(1), n)
	return emulator.Handled(sign(bytes.Compare(a, b)))
}

// char *strcpy(char *dst, const char *src)
func stubStrcpy(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	dst := call.Arg(0)
	src := cstring(cpu.Memory(), call.Arg(1), winstr.MaxANSIBytes)
	cpu.Memory().WriteBytes(dst, append(src, 0))
	return emulator.Handled(dst)
}

// char *strncpy(char *dst, const char *src, size_t n)
// Pads with NULs up to n and does not terminate a truncated copy.
func stubStrncpy(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	dst := call.Arg(0)
	n := int(min(call.Arg(2), maxCopy))
	buf := make([]byte, n)
	copy(buf, cstring(cpu.Memory(), call.Arg(1), n))
	cpu.Memory().WriteBytes(dst, buf)
	return emulator.Handled(dst)
}

// char *strcat(char *dst, const char *src)
func stubStrcat(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	dst := call.Arg(0)
	end := dst + uint64(len(cstring(cpu.Memory(), dst, winstr.MaxANSIBytes)))
	src := cstring(cpu.Memory(), call.Arg(1), winstr.MaxANSIBytes)
	cpu.Memory().WriteBytes(end, append(src, 0))
	return emulator.Handled(dst)
}

// char *strchr(const char *s, int c)
func stubStrchr(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	addr, c := call.Arg(0), byte(call.Arg(1))
	str := cstring(cpu.Memory(), addr, winstr.MaxANSIBytes)
	if c == 0 {
		return emulator.Handled(addr + uint64(len(str)))
	}
	if i := bytes.IndexByte(str, c); i >= 0 {
		return emulator.Handled(addr + uint64(i))
	}
	return emulator.Handled(0)
}

// void *memmove(void *dst, const void *src, size_t n)
func stubMemmove(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	dst, src, n := call.Arg(0), call.Arg(1), call.Arg(2)
	if n > 0 && n < maxCopy {
		cpu.Memory().WriteBytes(dst, cpu.Memory().ReadBytes(src, int(n)))
	}
	s.Trace("string", fmt.Sprintf("dst=%s src=%s n=%d", stubs.FormatHex(dst), stubs.FormatHex(src), n))
	return emulator.Handled(dst)
}

// void *memset(void *dst, int c, size_t n)
func stubMemset(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	dst, c, n := call.Arg(0), byte(call.Arg(1)), call.Arg(2)
	if n > 0 && n < maxCopy {
		cpu.Memory().WriteBytes(dst, bytes.Repeat([]byte{c}, int(n)))
	}
	s.Trace("string", stubs.FormatPtrPair("dst", dst, "c", uint64(c)))
	return emulator.Handled(dst)
}

// int memcmp(const void *a, const void *b, size_t n)
func stubMemcmp(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	n := int(min(call.Arg(2), maxCopy))
	a := cpu.Memory().ReadBytes(call.Arg(0), n)
	b := cpu.Memory().ReadBytes(call.Arg(1), n)
	return emulator.Handled(sign(bytes.Compare(a, b)))
}
