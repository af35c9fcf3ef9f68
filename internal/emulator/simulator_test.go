package emulator

import (
	"errors"
	"testing"

	"github.com/JohnDoe6345789/winejs/internal/pe"
	"github.com/JohnDoe6345789/winejs/internal/pe/petest"
)

func TestSimulatorRunsFromCleanState(t *testing.T) {
	code := []byte{
		0x48, 0x8B, 0x04, 0x24, // mov rax, [rsp]
		0x48, 0x83, 0xC0, 0x01, // add rax, 1
		0x48, 0x89, 0x04, 0x24, // mov [rsp], rax
		0xF4,
	}
	sim, err := NewSimulator(petest.New().Code(code).Build())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		cpu := sim.NewCPU()
		if _, err := cpu.Run(RunOptions{}); err != nil {
			t.Fatal(err)
		}
		if got := cpu.Reg(RAX, 64); got != 1 {
			t.Errorf("run %d: rax = %d, want 1", i, got)
		}
	}
}

func TestSimulatorRejectsInvalidImage(t *testing.T) {
	_, err := NewSimulator([]byte("not a pe"))
	if !errors.Is(err, pe.ErrInvalidImage) {
		t.Errorf("err = %v, want ErrInvalidImage", err)
	}
}
