package msvcrt

import (
	"math"
	"reflect"
	"testing"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/stubs/stubtest"
	"github.com/JohnDoe6345789/winejs/internal/winstr"
)

func TestFormat(t *testing.T) {
	strs := map[uint64]string{0x10: "ab", 0x20: "abcdef"}
	read := func(addr uint64, max int, wide bool) string {
		s := strs[addr]
		if wide {
			s = "W:" + s
		}
		if max > 0 && len(s) > max {
			s = s[:max]
		}
		return s
	}

	tests := []struct {
		format string
		args   []uint64
		want   string
	}{
		{"%d", []uint64{0xFFFFFFFF}, "-1"},
		{"%ld", []uint64{0xFFFFFFFF}, "-1"},
		{"%lld", []uint64{^uint64(0)}, "-1"},
		{"%I64u", []uint64{^uint64(0)}, "18446744073709551615"},
		{"%u", []uint64{0xFFFFFFFF}, "4294967295"},
		{"%hhd", []uint64{0x1FF}, "-1"},
		{"%5.2f", []uint64{math.Float64bits(3.14159)}, " 3.14"},
		{"%-4s|", []uint64{0x10}, "ab  |"},
		{"%.3s", []uint64{0x20}, "abc"},
		{"%ls", []uint64{0x10}, "W:ab"},
		{"%08x", []uint64{0xBEEF}, "0000beef"},
		{"%#X", []uint64{255}, "0XFF"},
		{"%c%c", []uint64{'o', 'k'}, "ok"},
		{"%p", []uint64{0x1000}, "0000000000001000"},
		{"%*d", []uint64{5, 42}, "   42"},
		{"100%%", nil, "100%"},
		{"%y", nil, "%y"},
		{"50%", nil, "50%"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			i := 0
			next := func() uint64 {
				if i >= len(tt.args) {
					return 0
				}
				i++
				return tt.args[i-1]
			}
			if got := Format(tt.format, next, read); got != tt.want {
				t.Errorf("Format(%q) = %q, want %q", tt.format, got, tt.want)
			}
		})
	}
}

const (
	fmtAddr = stubtest.Scratch
	strAddr = stubtest.Scratch + 0x100
	bufAddr = stubtest.Scratch + 0x200
	apAddr  = stubtest.Scratch + 0x300
)

func cstr(s string) []byte { return append([]byte(s), 0) }

func TestPrintfLineBuffering(t *testing.T) {
	p := stubtest.NewProgram("msvcrt.dll", "printf", "puts").
		MovImm(emulator.RCX, fmtAddr).Call("printf").
		MovImm(emulator.RCX, fmtAddr+0x40).MovImm(emulator.RDX, strAddr).Call("printf").
		MovImm(emulator.RCX, strAddr+0x40).Call("puts")
	res, _, cpu := p.Run(t, nil, func(cpu *emulator.CPU) {
		mem := cpu.Memory()
		mem.WriteBytes(fmtAddr, cstr("Hello, "))
		mem.WriteBytes(fmtAddr+0x40, cstr("%s!\n"))
		mem.WriteBytes(strAddr, cstr("world"))
		mem.WriteBytes(strAddr+0x40, cstr("done"))
	})
	want := []string{"Hello, world!", "done"}
	if !reflect.DeepEqual(res.ConsoleOutput, want) {
		t.Errorf("console = %q, want %q", res.ConsoleOutput, want)
	}
	if rax := cpu.Reg(emulator.RAX, 64); rax != 0 {
		t.Errorf("puts rax = %d", rax)
	}
}

func TestVprintf(t *testing.T) {
	res, _, cpu := stubtest.Call(t, nil, "ucrtbase.dll", "vprintf", func(cpu *emulator.CPU) {
		mem := cpu.Memory()
		mem.WriteBytes(fmtAddr, cstr("%d %s\n"))
		mem.WriteBytes(strAddr, cstr("apples"))
		mem.WriteU64(apAddr, 7)
		mem.WriteU64(apAddr+8, strAddr)
		cpu.SetReg(emulator.RCX, 64, fmtAddr)
		cpu.SetReg(emulator.RDX, 64, apAddr)
	})
	if len(res.ConsoleOutput) != 1 || res.ConsoleOutput[0] != "7 apples" {
		t.Errorf("console = %q", res.ConsoleOutput)
	}
	if rax := cpu.Reg(emulator.RAX, 64); rax != 9 {
		t.Errorf("rax = %d", rax)
	}
}

func TestSnprintfTruncates(t *testing.T) {
	_, _, cpu := stubtest.Call(t, nil, "msvcrt.dll", "_snprintf", func(cpu *emulator.CPU) {
		cpu.Memory().WriteBytes(fmtAddr, cstr("%s"))
		cpu.Memory().WriteBytes(strAddr, cstr("truncated"))
		cpu.SetReg(emulator.RCX, 64, bufAddr)
		cpu.SetReg(emulator.RDX, 64, 6)
		cpu.SetReg(emulator.R8, 64, fmtAddr)
		cpu.SetReg(emulator.R9, 64, strAddr)
	})
	if got := winstr.ReadANSI(cpu.Memory(), bufAddr, 32); got != "trunc" {
		t.Errorf("buf = %q", got)
	}
	if rax := cpu.Reg(emulator.RAX, 64); rax != 9 {
		t.Errorf("rax = %d", rax)
	}
}

func TestStringFunctions(t *testing.T) {
	p := stubtest.NewProgram("msvcrt.dll", "strlen", "strcmp", "strcpy", "strcat", "strchr").
		MovImm(emulator.RCX, strAddr).Call("strlen").MovReg(emulator.R12, emulator.RAX).
		MovImm(emulator.RCX, strAddr).MovImm(emulator.RDX, strAddr+0x40).Call("strcmp").MovReg(emulator.R13, emulator.RAX).
		MovImm(emulator.RCX, bufAddr).MovImm(emulator.RDX, strAddr).Call("strcpy").
		MovImm(emulator.RCX, bufAddr).MovImm(emulator.RDX, strAddr+0x40).Call("strcat").
		MovImm(emulator.RCX, bufAddr).MovImm(emulator.RDX, 'z').Call("strchr").MovReg(emulator.R14, emulator.RAX)
	_, _, cpu := p.Run(t, nil, func(cpu *emulator.CPU) {
		cpu.Memory().WriteBytes(strAddr, cstr("abc"))
		cpu.Memory().WriteBytes(strAddr+0x40, cstr("xyz"))
	})
	if got := cpu.Reg(emulator.R12, 64); got != 3 {
		t.Errorf("strlen = %d", got)
	}
	if got := int64(cpu.Reg(emulator.R13, 64)); got >= 0 {
		t.Errorf("strcmp = %d, want negative", got)
	}
	if got := winstr.ReadANSI(cpu.Memory(), bufAddr, 32); got != "abcxyz" {
		t.Errorf("buf = %q", got)
	}
	if got := cpu.Reg(emulator.R14, 64); got != bufAddr+5 {
		t.Errorf("strchr = %#x", got)
	}
}

func TestHeap(t *testing.T) {
	p := stubtest.NewProgram("msvcrt.dll", "malloc", "memset", "realloc").
		MovImm(emulator.RCX, 10).Call("malloc").MovReg(emulator.R12, emulator.RAX).
		MovReg(emulator.RCX, emulator.RAX).MovImm(emulator.RDX, 0x41).MovImm(emulator.R8, 10).Call("memset").
		MovReg(emulator.RCX, emulator.R12).MovImm(emulator.RDX, 64).Call("realloc").MovReg(emulator.R13, emulator.RAX)
	_, s, cpu := p.Run(t, nil, nil)

	first, second := cpu.Reg(emulator.R12, 64), cpu.Reg(emulator.R13, 64)
	if first != HeapBase || second != HeapBase+16 {
		t.Fatalf("blocks = %#x, %#x", first, second)
	}
	if got := string(cpu.Memory().ReadBytes(second, 17)); got != "AAAAAAAAAA\x00\x00\x00\x00\x00\x00\x00" {
		t.Errorf("realloc copy = %q", got)
	}
	if HeapOf(s).Size(second) != 64 {
		t.Errorf("size = %d", HeapOf(s).Size(second))
	}
}

func TestExitFlushesPartialLine(t *testing.T) {
	p := stubtest.NewProgram("msvcrt.dll", "printf", "exit").
		MovImm(emulator.RCX, fmtAddr).Call("printf").
		MovImm(emulator.RCX, 7).Call("exit").
		Call("printf")
	res, s, _ := p.Run(t, nil, func(cpu *emulator.CPU) {
		cpu.Memory().WriteBytes(fmtAddr, cstr("partial"))
	})
	if len(res.ConsoleOutput) != 1 || res.ConsoleOutput[0] != "partial" {
		t.Errorf("console = %q", res.ConsoleOutput)
	}
	if !s.Exited || s.ExitCode != 7 || !res.Stopped {
		t.Errorf("exited=%v code=%d stopped=%v", s.Exited, s.ExitCode, res.Stopped)
	}
}

func TestGetMainArgs(t *testing.T) {
	const argc, argv, envp = bufAddr, bufAddr + 8, bufAddr + 16
	_, _, cpu := stubtest.Call(t, nil, "msvcrt.dll", "__getmainargs", func(cpu *emulator.CPU) {
		cpu.SetReg(emulator.RCX, 64, argc)
		cpu.SetReg(emulator.RDX, 64, argv)
		cpu.SetReg(emulator.R8, 64, envp)
	})
	mem := cpu.Memory()
	if mem.ReadU32(argc) != 1 {
		t.Errorf("argc = %d", mem.ReadU32(argc))
	}
	arr := mem.ReadU64(argv)
	if got := winstr.ReadANSI(mem, mem.ReadU64(arr), 64); got != ProgramName {
		t.Errorf("argv[0] = %q", got)
	}
	if mem.ReadU64(arr+8) != 0 || mem.ReadU64(mem.ReadU64(envp)) != 0 {
		t.Error("argv or envp not NULL-terminated")
	}
}
