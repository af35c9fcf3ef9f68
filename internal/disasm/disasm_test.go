package disasm

import (
	"strings"
	"testing"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/pe"
	"github.com/JohnDoe6345789/winejs/internal/pe/petest"
)

func TestAt(t *testing.T) {
	b := petest.New().Import("KERNEL32.dll", "ExitProcess")
	code := []byte{0xB8, 0x01, 0x00, 0x00, 0x00} // mov eax, 1
	code = append(code, petest.CallIAT(b.TextAddress(len(code)), b.IATAddress("kernel32.dll", "ExitProcess"))...)
	code = append(code, 0x0F, 0x0B) // ud2
	b.Code(code)

	img, err := pe.Parse(b.Build())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cpu := emulator.New(img)

	mov := At(cpu, b.TextAddress(0))
	if !mov.Supported || mov.Text != "mov eax, 0x1" || mov.Hex() != "B801000000" {
		t.Errorf("mov = %+v", mov)
	}

	call := At(cpu, b.TextAddress(5))
	if !strings.HasPrefix(call.Text, "call") || call.Import != "kernel32.dll!ExitProcess" || len(call.Bytes) != 6 {
		t.Errorf("call = %+v", call)
	}

	ud2 := At(cpu, b.TextAddress(11))
	if ud2.Supported || ud2.Text != "ud2" {
		t.Errorf("ud2 = %+v", ud2)
	}
}

func TestAtSeesOverlay(t *testing.T) {
	b := petest.New().Code([]byte{0x90})
	img, err := pe.Parse(b.Build())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cpu := emulator.New(img)
	cpu.Memory().WriteBytes(b.TextAddress(0), []byte{0xF4})
	if got := At(cpu, b.TextAddress(0)).Text; got != "hlt" {
		t.Errorf("Text = %q", got)
	}
}
