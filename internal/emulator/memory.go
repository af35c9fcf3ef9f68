package emulator

import (
	"github.com/JohnDoe6345789/winejs/internal/pe"
)

// Memory is the guest address space: a read-only view of the image file
// translated through its section table, plus a sparse write overlay.
// Reads of unmapped addresses return zero.
type Memory struct {
	img     *pe.Image
	overlay map[uint64]byte
}

// NewMemory creates an empty overlay over img.
func NewMemory(img *pe.Image) *Memory {
	return &Memory{img: img, overlay: make(map[uint64]byte)}
}

// Reset discards every write.
func (m *Memory) Reset() {
	clear(m.overlay)
}

// Dirty returns the number of bytes held in the overlay.
func (m *Memory) Dirty() int {
	return len(m.overlay)
}

// ByteAt returns the byte at addr.
func (m *Memory) ByteAt(addr uint64) byte {
	if b, ok := m.overlay[addr]; ok {
		return b
	}
	off, ok := m.img.VAToOffset(addr)
	data := m.img.Data()
	if !ok || int(off) >= len(data) {
		return 0
	}
	return data[off]
}

// ReadBytes returns n bytes starting at addr.
func (m *Memory) ReadBytes(addr uint64, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = m.ByteAt(addr + uint64(i))
	}
	return out
}

// ReadUint reads a little-endian value of size bytes (at most 8).
func (m *Memory) ReadUint(addr uint64, size int) uint64 {
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(m.ByteAt(addr+uint64(i)))
	}
	return v
}

func (m *Memory) ReadU8(addr uint64) uint8   { return m.ByteAt(addr) }
func (m *Memory) ReadU16(addr uint64) uint16 { return uint16(m.ReadUint(addr, 2)) }
func (m *Memory) ReadU32(addr uint64) uint32 { return uint32(m.ReadUint(addr, 4)) }
func (m *Memory) ReadU64(addr uint64) uint64 { return m.ReadUint(addr, 8) }

// WriteBytes stores data at addr in the overlay.
func (m *Memory) WriteBytes(addr uint64, data []byte) {
	for i, b := range data {
		m.overlay[addr+uint64(i)] = b
	}
}

// WriteUint stores the low size bytes of v little-endian at addr.
func (m *Memory) WriteUint(addr uint64, size int, v uint64) {
	for i := 0; i < size; i++ {
		m.overlay[addr+uint64(i)] = byte(v)
		v >>= 8
	}
}

func (m *Memory) WriteU32(addr uint64, v uint32) { m.WriteUint(addr, 4, uint64(v)) }
func (m *Memory) WriteU64(addr uint64, v uint64) { m.WriteUint(addr, 8, v) }
