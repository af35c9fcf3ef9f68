package script

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/log"
	"github.com/JohnDoe6345789/winejs/internal/pe"
	"github.com/JohnDoe6345789/winejs/internal/pe/petest"
	"github.com/JohnDoe6345789/winejs/internal/winstr"
)

const scratch = 0x50000000

// callImport runs a program that calls dll!fn once with the script hooked.
func callImport(t *testing.T, src, dll, fn string, setup func(*emulator.CPU)) (*emulator.RunResult, *emulator.CPU) {
	t.Helper()
	e, err := New("test.js", src, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b := petest.New().Import(dll, fn)
	b.Code(append(petest.CallIAT(b.TextAddress(0), b.IATAddress(dll, fn)), 0xF4))
	img, err := pe.Parse(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	cpu := emulator.New(img)
	if setup != nil {
		setup(cpu)
	}
	// A declined call jumps into the unmapped IAT target and faults.
	res, _ := cpu.Run(emulator.RunOptions{MaxSteps: 10, Hooks: Hooks(e)})
	return res, cpu
}

func TestReturnValues(t *testing.T) {
	cases := []struct {
		body    string
		handled bool
		rax     uint64
	}{
		{"return 42;", true, 42},
		{"return {rax: 7};", true, 7},
		{"cpu.writeRegister('rax', 9); return true;", true, 9},
		{"return {};", true, 0xAA},
		{"cpu.writeRegister('rax', 3); return {note: 'kept'};", true, 3},
		{"return -1;", true, ^uint64(0)},
		{"return;", false, 0},
		{"return null;", false, 0},
		{"return false;", false, 0},
		{"return 'nope';", false, 0},
	}
	for _, tc := range cases {
		src := "function handleImport(name, cpu, call) { " + tc.body + " }"
		res, cpu := callImport(t, src, "kernel32.dll", "GetTickCount", func(cpu *emulator.CPU) {
			cpu.SetReg(emulator.RAX, 64, 0xAA)
		})
		if res.Halted != tc.handled {
			t.Errorf("%s: halted = %v, want %v", tc.body, res.Halted, tc.handled)
			continue
		}
		if tc.handled && cpu.Reg(emulator.RAX, 64) != tc.rax {
			t.Errorf("%s: rax = 0x%x, want 0x%x", tc.body, cpu.Reg(emulator.RAX, 64), tc.rax)
		}
	}
}

func TestCPUAndCallBindings(t *testing.T) {
	src := `
function handleImport(name, cpu, call) {
	if (name !== "kernel32.dll!WriteConsoleW" || call.dll !== "kernel32.dll" || call.name !== "WriteConsoleW") {
		throw new Error("bad name " + name);
	}
	var text = cpu.readWide(cpu.readRegister("rdx"), cpu.readRegister("r8d"));
	call.print("js: " + text);
	cpu.write(0x50000100, "ok");
	cpu.write(0x50000102, [0x21, 0]);
	var bytes = new Uint8Array(cpu.read(0x50000100, 3));
	if (bytes[2] !== 0x21) throw new Error("read back " + bytes[2]);
	if (call.arg(2) !== 5) throw new Error("arg2 " + call.arg(2));
	if (cpu.rip() <= 0) throw new Error("rip");
	return 1;
}`
	res, cpu := callImport(t, src, "kernel32.dll", "WriteConsoleW", func(cpu *emulator.CPU) {
		cpu.Memory().WriteBytes(scratch, winstr.EncodeWide("hello"))
		cpu.SetReg(emulator.RDX, 64, scratch)
		cpu.SetReg(emulator.R8, 64, 5)
	})
	if len(res.ConsoleOutput) != 1 || res.ConsoleOutput[0] != "js: hello" {
		t.Errorf("console = %q", res.ConsoleOutput)
	}
	if got := winstr.ReadANSI(cpu.Memory(), scratch+0x100, 0); got != "ok!" {
		t.Errorf("written = %q", got)
	}
}

func TestStop(t *testing.T) {
	res, _ := callImport(t, `function handleImport(n, cpu, call) { call.stop(); return 0; }`, "kernel32.dll", "ExitProcess", nil)
	if !res.Stopped {
		t.Errorf("result = %+v", res)
	}
}

func TestScriptErrorsDecline(t *testing.T) {
	src := `function handleImport(n, cpu) { cpu.readRegister("xmm9"); return 1; }`
	res, _ := callImport(t, src, "kernel32.dll", "Sleep", nil)
	if res.Halted {
		t.Error("a throwing script should decline the call")
	}
}

func TestTimeout(t *testing.T) {
	e, err := New("loop.js", `function handleImport() { for (;;) {} }`, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	e.Timeout = 20 * time.Millisecond
	b := petest.New().Import("kernel32.dll", "Sleep")
	b.Code(append(petest.CallIAT(b.TextAddress(0), b.IATAddress("kernel32.dll", "Sleep")), 0xF4))
	img, _ := pe.Parse(b.Build())
	out := make(chan bool, 1)
	go func() {
		cpu := emulator.New(img)
		res, _ := cpu.Run(emulator.RunOptions{MaxSteps: 1, Hooks: e})
		out <- len(res.ImportsVisited) == 1
	}()
	select {
	case ok := <-out:
		if !ok {
			t.Error("import not visited")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("script was not interrupted")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := New("empty.js", `var x = 1;`, nil); !errors.Is(err, ErrNoEntryPoint) {
		t.Errorf("err = %v, want ErrNoEntryPoint", err)
	}
	if _, err := New("bad.js", `function (`, nil); err == nil {
		t.Error("syntax error accepted")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.js"), nil); err == nil {
		t.Error("missing file accepted")
	}
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.js")
	os.WriteFile(a, []byte(`function handleImport(n) { log("a", n); }`), 0o644)
	engines, err := LoadAll([]string{a}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if len(engines) != 1 || engines[0].Name != "a.js" {
		t.Errorf("engines = %+v", engines)
	}
}
