// Package directx detects Direct3D, Direct2D and DXGI imports. Calls into
// those modules succeed with S_OK so startup code keeps running.
package directx

import (
	"strings"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/pe"
	"github.com/JohnDoe6345789/winejs/internal/stubs"
)

const sOK = 0

func init() {
	stubs.RegisterDetector(stubs.Detector{
		Name:        "directx",
		Match:       IsDirectX,
		Enabled:     enabled,
		Activate:    activate,
		Description: "DirectX module imports",
	})
	stubs.RegisterMatcher(stubs.Matcher{
		Name: "directx",
		Match: func(s *stubs.Session, sym pe.ImportSymbol) bool {
			return enabled(s) && IsDirectX(s, sym)
		},
		Hook:     stubDirectX,
		Category: "directx",
	})
}

func enabled(s *stubs.Session) bool {
	return s.Config.DirectX.Enabled
}

// IsDirectX reports whether sym comes from a module whose name contains
// one of the configured DirectX keywords.
func IsDirectX(s *stubs.Session, sym pe.ImportSymbol) bool {
	dll := strings.ToLower(sym.DLL)
	if dll == "" {
		return false
	}
	for _, kw := range s.Config.DirectX.Keywords {
		if kw != "" && strings.Contains(dll, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func activate(s *stubs.Session, matched []pe.ImportSymbol) {
	s.DirectX = true
	s.FlagGUI("directx")
	for _, sym := range matched {
		s.Trace("directx", sym.Qualified())
	}
}

func stubDirectX(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	s.DirectX = true
	s.Trace("directx", "S_OK")
	return emulator.Handled(sOK)
}
