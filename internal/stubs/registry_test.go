package stubs

import (
	"testing"

	"github.com/JohnDoe6345789/winejs/internal/config"
	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/pe"
	"github.com/JohnDoe6345789/winejs/internal/pe/petest"
)

func build(t *testing.T, dll string, fns ...string) (*pe.Image, *petest.Builder) {
	t.Helper()
	b := petest.New().Import(dll, fns...)
	code := petest.CallIAT(b.TextAddress(0), b.IATAddress(dll, fns[0]))
	b.Code(append(code, 0xF4))
	img, err := pe.Parse(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	return img, b
}

func runWith(t *testing.T, r *Registry, img *pe.Image, cfg *config.Config) (*Session, *emulator.CPU, *emulator.RunResult) {
	t.Helper()
	s := NewSession(img, cfg)
	cpu := emulator.New(img)
	res, err := cpu.Run(emulator.RunOptions{MaxSteps: 10, Hooks: r.Hooks(s)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return s, cpu, res
}

func TestLookupPrefersQualified(t *testing.T) {
	r := NewRegistry()
	r.RegisterFunc("any", nil, "Beep", func(*Session, *emulator.CPU, *emulator.ImportCall) emulator.HookOutcome {
		return emulator.Handled(1)
	})
	r.RegisterFunc("k32", []string{"KERNEL32.dll"}, "beep", func(*Session, *emulator.CPU, *emulator.ImportCall) emulator.HookOutcome {
		return emulator.Handled(2)
	}, "MessageBeep")

	def, ok := r.Lookup(pe.ImportSymbol{DLL: "kernel32.dll", Name: "Beep"})
	if !ok || def.Category != "k32" {
		t.Errorf("qualified lookup = %+v", def)
	}
	def, ok = r.Lookup(pe.ImportSymbol{DLL: "user32.dll", Name: "BEEP"})
	if !ok || def.Category != "any" {
		t.Errorf("unqualified lookup = %+v", def)
	}
	if _, ok := r.Lookup(pe.ImportSymbol{DLL: "user32.dll", Name: "MessageBeep"}); ok {
		t.Error("alias leaked outside its DLL")
	}
	if r.Count() != 3 || len(r.List()) != 2 {
		t.Errorf("Count = %d List = %v", r.Count(), r.List())
	}
}

func TestHooksDispatchAndTrace(t *testing.T) {
	img, _ := build(t, "kernel32.dll", "GetTickCount")
	r := NewRegistry()
	r.RegisterFunc("kernel32", []string{"kernel32.dll"}, "GetTickCount", func(s *Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
		s.Trace("kernel32", "ticks")
		return emulator.Handled(1000)
	})
	var traced []string
	r.OnCall = func(rip uint64, category, name, detail string) {
		traced = append(traced, category+" "+name+" "+detail)
	}

	_, cpu, res := runWith(t, r, img, nil)
	if cpu.Reg(emulator.RAX, 64) != 1000 || !res.Halted {
		t.Errorf("rax = %d result = %+v", cpu.Reg(emulator.RAX, 64), res)
	}
	if len(traced) != 1 || traced[0] != "kernel32 kernel32.dll!GetTickCount ticks" {
		t.Errorf("traced = %q", traced)
	}
}

func TestDeclinedStubFallsThroughToMatcher(t *testing.T) {
	img, _ := build(t, "gdi32.dll", "TextOutA")
	r := NewRegistry()
	r.RegisterFunc("gdi", nil, "TextOutA", func(*Session, *emulator.CPU, *emulator.ImportCall) emulator.HookOutcome {
		return emulator.NotHandled()
	})
	r.RegisterMatcher(Matcher{
		Name:  "gdi",
		Match: func(_ *Session, sym pe.ImportSymbol) bool { return sym.DLL == "gdi32.dll" },
		Hook: func(s *Session, _ *emulator.CPU, _ *emulator.ImportCall) emulator.HookOutcome {
			s.FlagGUI("gdi")
			return emulator.Handled(7)
		},
	})
	s, cpu, _ := runWith(t, r, img, nil)
	if cpu.Reg(emulator.RAX, 64) != 7 || !s.GUIIntent {
		t.Errorf("rax = %d gui = %v", cpu.Reg(emulator.RAX, 64), s.GUIIntent)
	}
}

func TestFallback(t *testing.T) {
	img, _ := build(t, "advapi32.dll", "RegOpenKeyExA")
	r := NewRegistry()

	_, cpu, res := runWith(t, r, img, nil)
	if cpu.Reg(emulator.RAX, 64) != 0 || !res.Halted {
		t.Errorf("fallback: rax = %d result = %+v", cpu.Reg(emulator.RAX, 64), res)
	}

	cfg := config.Default()
	cfg.Imports.Fallback = false
	s := NewSession(img, cfg)
	_, err := emulator.New(img).Run(emulator.RunOptions{MaxSteps: 10, Hooks: r.Hooks(s)})
	if err == nil {
		t.Error("without fallback the call should jump into the unmapped IAT target")
	}
}

func TestDetectorsFireOncePerSession(t *testing.T) {
	img, _ := build(t, "ws2_32.dll", "connect", "send")
	r := NewRegistry()
	var fired []int
	r.RegisterDetector(Detector{
		Name:     "net",
		Patterns: []string{"ws2_32*"},
		Activate: func(_ *Session, matched []pe.ImportSymbol) { fired = append(fired, len(matched)) },
	})
	r.RegisterDetector(Detector{
		Name:     "off",
		Patterns: []string{"*"},
		Enabled:  func(*Session) bool { return false },
		Activate: func(*Session, []pe.ImportSymbol) { t.Error("disabled detector fired") },
	})

	s := NewSession(img, nil)
	r.Hooks(s)
	r.Hooks(s)
	if len(fired) != 1 || fired[0] != 2 || !s.Detected("net") {
		t.Errorf("fired = %v", fired)
	}
	r.Hooks(NewSession(img, nil))
	if len(fired) != 2 {
		t.Errorf("new session did not rerun detectors: %v", fired)
	}
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		name, pattern string
		want          bool
	}{
		{"ws2_32.dll!connect", "ws2_32*", true},
		{"ws2_32.dll!connect", "*connect", true},
		{"ws2_32.dll!connect", "*32.dll*", true},
		{"ws2_32.dll!connect", "WS2_32", true},
		{"kernel32.dll!connect", "ws2_32*", false},
		{"kernel32.dll!sleep", "*send", false},
	}
	for _, tc := range cases {
		if got := MatchPattern(tc.name, tc.pattern); got != tc.want {
			t.Errorf("MatchPattern(%q, %q) = %v", tc.name, tc.pattern, got)
		}
	}
}

func TestSessionState(t *testing.T) {
	s := NewSession(nil, nil)
	n := 0
	get := func() *int {
		return s.State("counter", func() any { n++; return new(int) }).(*int)
	}
	*get() = 5
	if *get() != 5 || n != 1 {
		t.Errorf("state = %d inits = %d", *get(), n)
	}
	if s.Imports() != nil {
		t.Error("nil image should have no imports")
	}
	s.FlagGUI("a")
	s.FlagGUI("a")
	if len(s.GUIReasons) != 1 {
		t.Errorf("reasons = %v", s.GUIReasons)
	}
}

func TestFormat(t *testing.T) {
	if FormatPtrPair("a", 0, "b", 0x10) != "a=0 b=0x10" {
		t.Error(FormatPtrPair("a", 0, "b", 0x10))
	}
	if FormatPtrPair("a", 1, "", 0) != "a=0x1" {
		t.Error(FormatPtrPair("a", 1, "", 0))
	}
}
