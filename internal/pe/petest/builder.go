// Package petest builds small PE32+ images for tests and fixtures.
//
// Layout is fixed so that addresses are known before code is assembled:
//
//	0x0000  DOS header, e_lfanew = 0x80
//	0x0080  PE signature, COFF header, optional header (240 bytes)
//	0x0188  section table
//	.text   RVA 0x1000
//	.data   RVA 0x2000
//	.idata  RVA 0x3000 (descriptors, lookup tables, IAT, hint/name entries)
package petest

import (
	"encoding/binary"
	"strings"
)

const (
	FileAlignment    = 0x200
	SectionAlignment = 0x1000
	DefaultImageBase = 0x140000000

	TextRVA  = 0x1000
	DataRVA  = 0x2000
	IdataRVA = 0x3000

	lfanew         = 0x80
	optionalSize   = 240
	sectionHdrSize = 40
)

type dllImports struct {
	name  string
	funcs []string
}

// Section is an extra raw section placed verbatim at RVA.
type Section struct {
	Name        string
	RVA         uint32
	VirtualSize uint32
	Data        []byte
}

// Builder assembles a PE32+ image.
type Builder struct {
	ImageBase uint64
	Machine   uint16
	Magic     uint16
	EntryRVA  uint32

	// OmitLookup leaves OriginalFirstThunk zero so loaders must walk the IAT.
	OmitLookup bool

	text  []byte
	data  []byte
	dlls  []dllImports
	extra []Section
}

// New returns a builder for an x86-64 PE32+ image with entry at .text.
func New() *Builder {
	return &Builder{
		ImageBase: DefaultImageBase,
		Machine:   0x8664,
		Magic:     0x20B,
		EntryRVA:  TextRVA,
	}
}

// Code sets the contents of .text.
func (b *Builder) Code(code []byte) *Builder {
	b.text = append([]byte(nil), code...)
	return b
}

// Data sets the contents of .data.
func (b *Builder) Data(data []byte) *Builder {
	b.data = append([]byte(nil), data...)
	return b
}

// Import adds by-name imports from dll. The DLL name is kept as given.
func (b *Builder) Import(dll string, funcs ...string) *Builder {
	for i := range b.dlls {
		if b.dlls[i].name == dll {
			b.dlls[i].funcs = append(b.dlls[i].funcs, funcs...)
			return b
		}
	}
	b.dlls = append(b.dlls, dllImports{name: dll, funcs: funcs})
	return b
}

// AddSection appends an extra section after the standard ones.
func (b *Builder) AddSection(s Section) *Builder {
	b.extra = append(b.extra, s)
	return b
}

// TextAddress returns the VA of .text + off.
func (b *Builder) TextAddress(off int) uint64 {
	return b.ImageBase + TextRVA + uint64(off)
}

// DataAddress returns the VA of .data + off.
func (b *Builder) DataAddress(off int) uint64 {
	return b.ImageBase + DataRVA + uint64(off)
}

// IATAddress returns the VA of the IAT slot for dll!name, or 0 when the
// import was never added. Matching is case-insensitive.
func (b *Builder) IATAddress(dll, name string) uint64 {
	_, slots := b.idata()
	rva, ok := slots[strings.ToLower(dll)+"!"+name]
	if !ok {
		return 0
	}
	return b.ImageBase + uint64(rva)
}

// idata lays out the import section and returns it with the IAT slot RVA
// of every import.
func (b *Builder) idata() ([]byte, map[string]uint32) {
	slots := make(map[string]uint32)
	if len(b.dlls) == 0 {
		return nil, slots
	}

	off := (len(b.dlls) + 1) * 20
	ilt := make([]int, len(b.dlls))
	for i, d := range b.dlls {
		ilt[i] = off
		off += (len(d.funcs) + 1) * 8
	}
	iat := make([]int, len(b.dlls))
	for i, d := range b.dlls {
		iat[i] = off
		off += (len(d.funcs) + 1) * 8
	}
	hints := make([][]int, len(b.dlls))
	for i, d := range b.dlls {
		for _, fn := range d.funcs {
			hints[i] = append(hints[i], off)
			off += 2 + len(fn) + 1
			off += off & 1
		}
	}
	names := make([]int, len(b.dlls))
	for i, d := range b.dlls {
		names[i] = off
		off += len(d.name) + 1
	}

	buf := make([]byte, off)
	le := binary.LittleEndian
	for i, d := range b.dlls {
		desc := buf[i*20:]
		if !b.OmitLookup {
			le.PutUint32(desc[0:], uint32(IdataRVA+ilt[i]))
		}
		le.PutUint32(desc[12:], uint32(IdataRVA+names[i]))
		le.PutUint32(desc[16:], uint32(IdataRVA+iat[i]))
		copy(buf[names[i]:], d.name)

		for j, fn := range d.funcs {
			entry := uint64(IdataRVA + hints[i][j])
			le.PutUint64(buf[ilt[i]+j*8:], entry)
			le.PutUint64(buf[iat[i]+j*8:], entry)
			le.PutUint16(buf[hints[i][j]:], uint16(j))
			copy(buf[hints[i][j]+2:], fn)
			slots[strings.ToLower(d.name)+"!"+fn] = uint32(IdataRVA + iat[i] + j*8)
		}
	}
	return buf, slots
}

type layoutSection struct {
	name  string
	rva   uint32
	vsize uint32
	data  []byte
	chars uint32
}

// Build renders the image.
func (b *Builder) Build() []byte {
	idata, _ := b.idata()
	secs := []layoutSection{
		{name: ".text", rva: TextRVA, data: b.text, chars: 0x60000020},
		{name: ".data", rva: DataRVA, data: b.data, chars: 0xC0000040},
	}
	if len(idata) > 0 {
		secs = append(secs, layoutSection{name: ".idata", rva: IdataRVA, data: idata, chars: 0xC0000040})
	}
	for _, s := range b.extra {
		secs = append(secs, layoutSection{name: s.Name, rva: s.RVA, vsize: s.VirtualSize, data: s.Data, chars: 0x40000040})
	}

	headers := alignUp(lfanew+4+20+optionalSize+len(secs)*sectionHdrSize, FileAlignment)
	rawPtr := make([]int, len(secs))
	cursor := headers
	imageEnd := uint32(SectionAlignment)
	for i, s := range secs {
		rawPtr[i] = cursor
		cursor += alignUp(len(s.data), FileAlignment)
		end := s.rva + max(s.vsize, uint32(len(s.data)))
		imageEnd = max(imageEnd, uint32(alignUp(int(end), SectionAlignment)))
	}

	out := make([]byte, cursor)
	le := binary.LittleEndian

	out[0], out[1] = 'M', 'Z'
	le.PutUint32(out[0x3C:], lfanew)
	copy(out[lfanew:], "PE\x00\x00")

	coff := out[lfanew+4:]
	le.PutUint16(coff[0:], b.Machine)
	le.PutUint16(coff[2:], uint16(len(secs)))
	le.PutUint16(coff[16:], optionalSize)
	le.PutUint16(coff[18:], 0x0022)

	opt := out[lfanew+4+20:]
	le.PutUint16(opt[0:], b.Magic)
	le.PutUint32(opt[4:], uint32(len(b.text)))
	le.PutUint32(opt[16:], b.EntryRVA)
	le.PutUint32(opt[20:], TextRVA)
	le.PutUint64(opt[24:], b.ImageBase)
	le.PutUint32(opt[32:], SectionAlignment)
	le.PutUint32(opt[36:], FileAlignment)
	le.PutUint16(opt[40:], 6)
	le.PutUint16(opt[48:], 6)
	le.PutUint32(opt[56:], imageEnd)
	le.PutUint32(opt[60:], uint32(headers))
	le.PutUint16(opt[68:], 3) // console subsystem
	le.PutUint64(opt[72:], 0x100000)
	le.PutUint64(opt[80:], 0x1000)
	le.PutUint64(opt[88:], 0x100000)
	le.PutUint64(opt[96:], 0x1000)
	le.PutUint32(opt[108:], 16)
	if len(idata) > 0 {
		le.PutUint32(opt[112+1*8:], IdataRVA)
		le.PutUint32(opt[112+1*8+4:], uint32((len(b.dlls)+1)*20))
	}

	table := out[lfanew+4+20+optionalSize:]
	for i, s := range secs {
		hdr := table[i*sectionHdrSize:]
		copy(hdr[0:8], s.name)
		le.PutUint32(hdr[8:], max(s.vsize, uint32(len(s.data))))
		le.PutUint32(hdr[12:], s.rva)
		le.PutUint32(hdr[16:], uint32(alignUp(len(s.data), FileAlignment)))
		le.PutUint32(hdr[20:], uint32(rawPtr[i]))
		le.PutUint32(hdr[36:], s.chars)
		copy(out[rawPtr[i]:], s.data)
	}
	return out
}

func alignUp(v, align int) int {
	return (v + align - 1) &^ (align - 1)
}

// Rel32 returns the little-endian displacement from the end of an
// instruction at next to target, for RIP-relative and branch encodings.
func Rel32(next, target uint64) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(int32(int64(target-next))))
	return out
}

// CallIAT encodes "call qword [rip+disp32]" at addr referencing slot.
func CallIAT(addr, slot uint64) []byte {
	return append([]byte{0xFF, 0x15}, Rel32(addr+6, slot)...)
}

// JmpIAT encodes "jmp qword [rip+disp32]" at addr referencing slot.
func JmpIAT(addr, slot uint64) []byte {
	return append([]byte{0xFF, 0x25}, Rel32(addr+6, slot)...)
}
