// Package pe parses PE32+ (x86-64) executable images into the view the
// emulator needs: sections, data directories and the import address table.
package pe

import (
	"fmt"
	"os"
	"strings"

	"github.com/JohnDoe6345789/winejs/internal/log"
	"go.uber.org/zap"
)

// Header constants.
const (
	dosMagic      = 0x5A4D
	peSignature   = 0x00004550
	lfanewOffset  = 0x3C
	MachineAMD64  = 0x8664
	MagicPE32Plus = 0x20B

	coffHeaderSize    = 20
	sectionHeaderSize = 40
	dataDirectorySize = 8

	// Offsets inside the PE32+ optional header.
	optEntryPoint    = 16
	optImageBase     = 24
	optSizeOfImage   = 56
	optSubsystem     = 68
	optNumberOfDirs  = 0x6C
	optDataDirectory = 0x70

	maxDataDirectories = 16
	maxStringLen       = 4096
)

// Data directory indices.
const (
	DirectoryExport = 0
	DirectoryImport = 1
	DirectoryIAT    = 12
)

// Section is one entry of the section table.
type Section struct {
	Name             string
	VirtualSize      uint32
	VirtualAddress   uint32
	SizeOfRawData    uint32
	PointerToRawData uint32
	Characteristics  uint32
}

// Extent is the number of RVA bytes the section covers.
func (s Section) Extent() uint32 {
	return max(s.VirtualSize, s.SizeOfRawData)
}

// Contains reports whether rva falls inside the section.
func (s Section) Contains(rva uint32) bool {
	return rva >= s.VirtualAddress && uint64(rva) < uint64(s.VirtualAddress)+uint64(s.Extent())
}

// DataDirectory is an (RVA, size) pair from the optional header.
type DataDirectory struct {
	RVA  uint32
	Size uint32
}

// Image is a parsed PE32+ file. It is immutable once Parse returns.
type Image struct {
	Machine         uint16
	Subsystem       uint16
	ImageBase       uint64
	EntryRVA        uint32
	SizeOfImage     uint32
	Sections        []Section
	DataDirectories []DataDirectory

	// Imports maps the absolute VA of each IAT slot to its symbol.
	Imports map[uint64]ImportSymbol
	// ImportList holds the same symbols in directory order.
	ImportList []ImportSymbol
	// ImportErr is set when the import walk stopped early.
	ImportErr error

	r Reader
}

// Open reads and parses the file at path.
func Open(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates the headers in data and builds an Image. The image keeps
// a reference to data; callers must not modify it afterwards.
func Parse(data []byte) (*Image, error) {
	img := &Image{
		r:       NewReader(data),
		Imports: make(map[uint64]ImportSymbol),
	}
	if err := img.parseHeaders(); err != nil {
		return nil, err
	}
	if err := img.parseImports(); err != nil {
		img.ImportErr = err
		log.L.Warn("import directory truncated",
			zap.Int("parsed", len(img.ImportList)),
			zap.Error(err),
		)
	}
	return img, nil
}

func (img *Image) parseHeaders() error {
	r := img.r

	magic, err := r.U16(0)
	if err != nil || magic != dosMagic {
		return invalid("missing MZ header, unsupported binary", err)
	}
	lfanew, err := r.U32(lfanewOffset)
	if err != nil {
		return invalid("truncated DOS header", err)
	}
	peOff := int64(lfanew)
	sig, err := r.U32(peOff)
	if err != nil || sig != peSignature {
		return invalid("missing PE signature", err)
	}

	coff := peOff + 4
	if img.Machine, err = r.U16(coff); err != nil {
		return invalid("truncated COFF header", err)
	}
	if img.Machine != MachineAMD64 {
		return unsupported("only x86-64 PE files are supported")
	}
	numSections, err := r.U16(coff + 2)
	if err != nil {
		return invalid("truncated COFF header", err)
	}
	optSize, err := r.U16(coff + 16)
	if err != nil {
		return invalid("truncated COFF header", err)
	}

	opt := coff + coffHeaderSize
	optMagic, err := r.U16(opt)
	if err != nil {
		return invalid("truncated optional header", err)
	}
	if optMagic != MagicPE32Plus {
		return unsupported("only PE32+ images are supported")
	}

	if img.EntryRVA, err = r.U32(opt + optEntryPoint); err != nil {
		return invalid("truncated optional header", err)
	}
	if img.ImageBase, err = r.U64(opt + optImageBase); err != nil {
		return invalid("truncated optional header", err)
	}
	if img.SizeOfImage, err = r.U32(opt + optSizeOfImage); err != nil {
		return invalid("truncated optional header", err)
	}
	if img.Subsystem, err = r.U16(opt + optSubsystem); err != nil {
		return invalid("truncated optional header", err)
	}

	numDirs, err := r.U32(opt + optNumberOfDirs)
	if err != nil {
		return invalid("truncated optional header", err)
	}
	numDirs = min(numDirs, maxDataDirectories)
	img.DataDirectories = make([]DataDirectory, 0, numDirs)
	for i := int64(0); i < int64(numDirs); i++ {
		base := opt + optDataDirectory + i*dataDirectorySize
		rva, err := r.U32(base)
		if err != nil {
			return invalid("truncated data directory", err)
		}
		size, err := r.U32(base + 4)
		if err != nil {
			return invalid("truncated data directory", err)
		}
		img.DataDirectories = append(img.DataDirectories, DataDirectory{RVA: rva, Size: size})
	}

	table := opt + int64(optSize)
	img.Sections = make([]Section, 0, numSections)
	for i := int64(0); i < int64(numSections); i++ {
		s, err := img.readSection(table + i*sectionHeaderSize)
		if err != nil {
			return invalid(fmt.Sprintf("truncated section header %d", i), err)
		}
		img.Sections = append(img.Sections, s)
	}
	return nil
}

func (img *Image) readSection(base int64) (Section, error) {
	raw, err := img.r.Bytes(base, sectionHeaderSize)
	if err != nil {
		return Section{}, err
	}
	hdr := NewReader(raw)
	name := raw[:8]
	if i := strings.IndexByte(string(name), 0); i >= 0 {
		name = name[:i]
	}
	s := Section{Name: string(name)}
	s.VirtualSize, _ = hdr.U32(8)
	s.VirtualAddress, _ = hdr.U32(12)
	s.SizeOfRawData, _ = hdr.U32(16)
	s.PointerToRawData, _ = hdr.U32(20)
	s.Characteristics, _ = hdr.U32(36)
	return s, nil
}

// Data returns the raw file bytes.
func (img *Image) Data() []byte {
	return img.r.data
}

// EntryPoint returns the absolute VA of the entry point.
func (img *Image) EntryPoint() uint64 {
	return img.ImageBase + uint64(img.EntryRVA)
}

// Directory returns data directory i, or a zero entry when absent.
func (img *Image) Directory(i int) DataDirectory {
	if i < 0 || i >= len(img.DataDirectories) {
		return DataDirectory{}
	}
	return img.DataDirectories[i]
}

// Section returns the first section named name.
func (img *Image) Section(name string) (Section, bool) {
	for _, s := range img.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// RVAToOffset translates an RVA to a file offset using the first section
// that covers it.
func (img *Image) RVAToOffset(rva uint32) (uint32, bool) {
	for _, s := range img.Sections {
		if s.Contains(rva) {
			return s.PointerToRawData + (rva - s.VirtualAddress), true
		}
	}
	return 0, false
}

// VAToOffset translates an absolute VA to a file offset.
func (img *Image) VAToOffset(va uint64) (uint32, bool) {
	if va < img.ImageBase {
		return 0, false
	}
	rva := va - img.ImageBase
	if rva > 0xFFFFFFFF {
		return 0, false
	}
	return img.RVAToOffset(uint32(rva))
}

// ReadAnsiString reads a NUL-terminated string at rva, bounded to 4096
// bytes. Untranslatable RVAs yield "".
func (img *Image) ReadAnsiString(rva uint32) string {
	off, ok := img.RVAToOffset(rva)
	if !ok {
		return ""
	}
	return img.r.CString(int64(off), maxStringLen)
}

// ImportAt returns the import bound to the IAT slot at va.
func (img *Image) ImportAt(va uint64) (ImportSymbol, bool) {
	sym, ok := img.Imports[va]
	return sym, ok
}

// DLLs returns the imported module names in directory order.
func (img *Image) DLLs() []string {
	var out []string
	seen := make(map[string]bool)
	for _, sym := range img.ImportList {
		if !seen[sym.DLL] {
			seen[sym.DLL] = true
			out = append(out, sym.DLL)
		}
	}
	return out
}
