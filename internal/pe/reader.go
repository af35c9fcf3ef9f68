package pe

import (
	"fmt"
	"math/bits"

	"golang.org/x/exp/constraints"
)

// Reader performs bounds-checked little-endian reads over a borrowed slice.
// The slice is never copied or modified.
type Reader struct {
	data []byte
}

// NewReader wraps data.
func NewReader(data []byte) Reader {
	return Reader{data: data}
}

// Len returns the size of the underlying buffer.
func (r Reader) Len() int {
	return len(r.data)
}

// readLE decodes a T stored little-endian at off.
func readLE[T constraints.Unsigned](data []byte, off int64) (T, error) {
	var v T
	size := int64(bits.Len64(uint64(^v)) / 8)
	if off < 0 || off+size > int64(len(data)) {
		return 0, fmt.Errorf("%w: %d bytes at 0x%x", ErrTruncated, size, off)
	}
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | T(data[off+i])
	}
	return v, nil
}

func (r Reader) U8(off int64) (uint8, error)   { return readLE[uint8](r.data, off) }
func (r Reader) U16(off int64) (uint16, error) { return readLE[uint16](r.data, off) }
func (r Reader) U32(off int64) (uint32, error) { return readLE[uint32](r.data, off) }
func (r Reader) U64(off int64) (uint64, error) { return readLE[uint64](r.data, off) }

// Bytes returns a sub-slice of n bytes at off. The result aliases the buffer.
func (r Reader) Bytes(off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off+n > int64(len(r.data)) {
		return nil, fmt.Errorf("%w: %d bytes at 0x%x", ErrTruncated, n, off)
	}
	return r.data[off : off+n], nil
}

// CString reads a NUL-terminated byte string starting at off, stopping
// after max bytes or at the end of the buffer.
func (r Reader) CString(off int64, max int) string {
	if off < 0 || off >= int64(len(r.data)) {
		return ""
	}
	end := off
	for end < int64(len(r.data)) && end-off < int64(max) && r.data[end] != 0 {
		end++
	}
	return string(r.data[off:end])
}
