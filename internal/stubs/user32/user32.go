// Package user32 provides stubs that record GUI intent. No window is ever
// created; every call succeeds.
package user32

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/pe"
	"github.com/JohnDoe6345789/winejs/internal/stubs"
	"github.com/JohnDoe6345789/winejs/internal/winstr"
)

var dlls = []string{"user32.dll"}

const idOK = 1

func init() {
	stubs.RegisterFunc("user32", dlls, "MessageBoxA", stubMessageBoxA, "MessageBoxExA")
	stubs.RegisterFunc("user32", dlls, "MessageBoxW", stubMessageBoxW, "MessageBoxExW")

	for _, name := range []string{
		"CreateWindowExA", "CreateWindowExW",
		"RegisterClassA", "RegisterClassW", "RegisterClassExA", "RegisterClassExW",
		"DialogBoxParamA", "DialogBoxParamW", "DialogBoxIndirectParamA", "DialogBoxIndirectParamW",
		"ShowWindow", "UpdateWindow",
	} {
		stubs.RegisterFunc("user32", dlls, name, stubWindow)
	}

	stubs.RegisterMatcher(stubs.Matcher{
		Name:     "gui-keywords",
		Match:    matchGUIKeyword,
		Hook:     stubWindow,
		Category: "gui",
	})
}

// int MessageBoxA(HWND, LPCSTR text, LPCSTR caption, UINT type)
func stubMessageBoxA(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	text := winstr.ReadANSI(cpu.Memory(), call.Arg(1), winstr.DefaultLimit)
	caption := winstr.ReadANSI(cpu.Memory(), call.Arg(2), winstr.DefaultLimit)
	return messageBox(s, call, text, caption)
}

// int MessageBoxW(HWND, LPCWSTR text, LPCWSTR caption, UINT type)
func stubMessageBoxW(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	text := winstr.ReadWide(cpu.Memory(), call.Arg(1), winstr.DefaultLimit)
	caption := winstr.ReadWide(cpu.Memory(), call.Arg(2), winstr.DefaultLimit)
	return messageBox(s, call, text, caption)
}

func messageBox(s *stubs.Session, call *emulator.ImportCall, text, caption string) emulator.HookOutcome {
	s.FlagGUI(call.Symbol.Name)
	if text != "" {
		s.MessageBoxes = append(s.MessageBoxes, text)
		if s.Config.Imports.LogMessageBoxes {
			s.Log.Info("MessageBox payload",
				zap.String("text", text),
				zap.String("caption", caption),
			)
		}
	}
	s.Trace("gui", fmt.Sprintf("text=%s caption=%s", stubs.Quote(text), stubs.Quote(caption)))
	return emulator.Handled(idOK)
}

func stubWindow(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	s.FlagGUI(call.Symbol.Name)
	s.Trace("gui", "")
	return emulator.Handled(1)
}

func matchGUIKeyword(s *stubs.Session, sym pe.ImportSymbol) bool {
	name := strings.ToLower(sym.Name)
	for _, kw := range s.Config.Imports.GUIKeywords {
		if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
