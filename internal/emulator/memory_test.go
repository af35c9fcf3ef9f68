package emulator

import (
	"testing"

	"github.com/JohnDoe6345789/winejs/internal/pe"
	"github.com/JohnDoe6345789/winejs/internal/pe/petest"
)

func TestMemoryOverlay(t *testing.T) {
	b := petest.New().Data([]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88})
	img, err := pe.Parse(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	m := NewMemory(img)
	addr := b.DataAddress(0)

	if got := m.ReadU32(addr); got != 0x44332211 {
		t.Errorf("ReadU32 = 0x%x", got)
	}
	if got := m.ReadU64(addr); got != 0x8877665544332211 {
		t.Errorf("ReadU64 = 0x%x", got)
	}
	if got := m.ReadU8(0xDEAD0000); got != 0 {
		t.Errorf("unmapped read = 0x%x", got)
	}

	m.WriteUint(addr+1, 2, 0xBBAA)
	if got := m.ReadBytes(addr, 4); got[0] != 0x11 || got[1] != 0xAA || got[2] != 0xBB || got[3] != 0x44 {
		t.Errorf("overlay read = % x", got)
	}
	off, _ := img.VAToOffset(addr + 1)
	if img.Data()[off] != 0x22 {
		t.Error("write reached the image buffer")
	}
	if m.Dirty() != 2 {
		t.Errorf("Dirty = %d", m.Dirty())
	}

	m.WriteBytes(0x7000, []byte("hi"))
	if m.ReadU16(0x7000) != 0x6968 {
		t.Errorf("unmapped overlay read = 0x%x", m.ReadU16(0x7000))
	}
	m.Reset()
	if m.ReadU8(addr+1) != 0x22 || m.ReadU8(0x7000) != 0 {
		t.Error("Reset kept overlay bytes")
	}
}
