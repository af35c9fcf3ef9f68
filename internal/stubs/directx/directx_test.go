package directx

import (
	"testing"

	"github.com/JohnDoe6345789/winejs/internal/config"
	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/stubs/stubtest"
)

func TestDetectsDirectXImports(t *testing.T) {
	res, s, cpu := stubtest.Call(t, nil, "d3d11.dll", "D3D11CreateDevice", func(cpu *emulator.CPU) {
		cpu.SetReg(emulator.RAX, 64, 0x80004005)
	})
	if !s.DirectX || !s.Detected("directx") {
		t.Errorf("DirectX = %v detected = %v", s.DirectX, s.Detected("directx"))
	}
	if !s.GUIIntent {
		t.Error("DirectX should imply GUI intent")
	}
	if cpu.Reg(emulator.RAX, 64) != sOK || !res.Halted {
		t.Errorf("rax = 0x%x result = %+v", cpu.Reg(emulator.RAX, 64), res)
	}
}

func TestDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.DirectX.Enabled = false
	_, s, _ := stubtest.Call(t, cfg, "dxgi.dll", "CreateDXGIFactory", nil)
	if s.DirectX || s.Detected("directx") {
		t.Error("disabled detector fired")
	}
}

func TestOtherModulesIgnored(t *testing.T) {
	_, s, _ := stubtest.Call(t, nil, "kernel32.dll", "GetTickCount", nil)
	if s.DirectX {
		t.Error("kernel32 flagged as DirectX")
	}
}
