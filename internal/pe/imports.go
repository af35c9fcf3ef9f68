package pe

import (
	"fmt"
	"strings"
)

const (
	importDescriptorSize = 20
	thunkSize            = 8
	ordinalFlag64        = uint64(1) << 63
	maxImportNameLen     = 512
)

// ImportSymbol is one by-name import bound to an IAT slot.
type ImportSymbol struct {
	DLL        string // lower-cased, e.g. "kernel32.dll"
	Name       string
	Hint       uint16
	IATAddress uint64
}

// Qualified returns the "dll!Name" form handed to import hooks.
func (s ImportSymbol) Qualified() string {
	return s.DLL + "!" + s.Name
}

// parseImports walks the import directory. On a translation failure it
// keeps everything recorded so far and returns the error. A bad thunk
// table only ends that DLL's walk; the first such error is returned once
// the remaining descriptors have been read.
func (img *Image) parseImports() error {
	dir := img.Directory(DirectoryImport)
	if dir.RVA == 0 {
		return nil
	}

	var thunkErr error
	for cursor := dir.RVA; ; cursor += importDescriptorSize {
		lookupRVA, err := img.u32AtRVA(cursor)
		if err != nil {
			return err
		}
		nameRVA, err := img.u32AtRVA(cursor + 12)
		if err != nil {
			return err
		}
		iatRVA, err := img.u32AtRVA(cursor + 16)
		if err != nil {
			return err
		}
		if lookupRVA == 0 && iatRVA == 0 {
			return thunkErr
		}
		if lookupRVA == 0 {
			lookupRVA = iatRVA
		}

		dll := strings.ToLower(img.ReadAnsiString(nameRVA))
		if err := img.walkThunks(dll, lookupRVA, iatRVA); err != nil && thunkErr == nil {
			thunkErr = err
		}
	}
}

func (img *Image) walkThunks(dll string, lookupRVA, iatRVA uint32) error {
	for ; ; lookupRVA, iatRVA = lookupRVA+thunkSize, iatRVA+thunkSize {
		lookupOff, ok := img.RVAToOffset(lookupRVA)
		if !ok {
			return malformedImports(fmt.Sprintf("%s: lookup thunk rva 0x%x not mapped", dll, lookupRVA))
		}
		if _, ok := img.RVAToOffset(iatRVA); !ok {
			return malformedImports(fmt.Sprintf("%s: iat rva 0x%x not mapped", dll, iatRVA))
		}
		value, err := img.r.U64(int64(lookupOff))
		if err != nil {
			return &LoadError{Kind: ErrMalformedImportDirectory, Reason: dll + ": thunk truncated", Err: err}
		}
		if value == 0 {
			return nil
		}
		if value&ordinalFlag64 != 0 {
			continue
		}

		hintOff, ok := img.RVAToOffset(uint32(value))
		if !ok {
			continue
		}
		hint, err := img.r.U16(int64(hintOff))
		if err != nil {
			continue
		}
		sym := ImportSymbol{
			DLL:        dll,
			Name:       img.r.CString(int64(hintOff)+2, maxImportNameLen),
			Hint:       hint,
			IATAddress: img.ImageBase + uint64(iatRVA),
		}
		img.Imports[sym.IATAddress] = sym
		img.ImportList = append(img.ImportList, sym)
	}
}

func (img *Image) u32AtRVA(rva uint32) (uint32, error) {
	off, ok := img.RVAToOffset(rva)
	if !ok {
		return 0, malformedImports(fmt.Sprintf("descriptor rva 0x%x not mapped", rva))
	}
	v, err := img.r.U32(int64(off))
	if err != nil {
		return 0, &LoadError{Kind: ErrMalformedImportDirectory, Reason: "descriptor truncated", Err: err}
	}
	return v, nil
}
