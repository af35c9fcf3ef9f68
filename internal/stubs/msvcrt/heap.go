package msvcrt

import (
	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/stubs"
)

// HeapBase is where the bump allocator starts. The range is unmapped, so
// fresh blocks read as zero from the memory overlay.
const HeapBase = 0x60000000

func init() {
	stubs.RegisterFunc("heap", DLLs, "malloc", stubMalloc)
	stubs.RegisterFunc("heap", DLLs, "calloc", stubCalloc)
	stubs.RegisterFunc("heap", DLLs, "realloc", stubRealloc)
	stubs.RegisterFunc("heap", DLLs, "free", stubFree)
}

// Heap is a bump allocator. Blocks are never reused.
type Heap struct {
	next  uint64
	sizes map[uint64]uint64
}

// HeapOf returns the session's heap.
func HeapOf(s *stubs.Session) *Heap {
	return s.State("msvcrt.heap", func() any {
		return &Heap{next: HeapBase, sizes: make(map[uint64]uint64)}
	}).(*Heap)
}

// Alloc reserves size bytes aligned to 16. Zero-size requests still get a
// unique block.
func (h *Heap) Alloc(size uint64) uint64 {
	if size == 0 {
		size = 16
	}
	size = (size + 15) &^ 15
	ptr := h.next
	h.next += size
	h.sizes[ptr] = size
	return ptr
}

// Size returns the rounded size of the block at ptr, or 0.
func (h *Heap) Size(ptr uint64) uint64 {
	return h.sizes[ptr]
}

// void *malloc(size_t size)
func stubMalloc(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	size := call.Arg(0)
	ptr := HeapOf(s).Alloc(size)
	s.Trace("heap", stubs.FormatPtrPair("size", size, "->", ptr))
	return emulator.Handled(ptr)
}

// void *calloc(size_t count, size_t size)
func stubCalloc(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	total := call.Arg(0) * call.Arg(1)
	ptr := HeapOf(s).Alloc(total)
	s.Trace("heap", stubs.FormatPtrPair("total", total, "->", ptr))
	return emulator.Handled(ptr)
}

// void *realloc(void *ptr, size_t size)
func stubRealloc(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	old, size := call.Arg(0), call.Arg(1)
	h := HeapOf(s)
	ptr := h.Alloc(size)
	if n := min(h.Size(old), size); old != 0 && n > 0 {
		cpu.Memory().WriteBytes(ptr, cpu.Memory().ReadBytes(old, int(n)))
	}
	s.Trace("heap", stubs.FormatPtrPair("size", size, "->", ptr))
	return emulator.Handled(ptr)
}

// void free(void *ptr)
func stubFree(s *stubs.Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	return emulator.Handled(0)
}
