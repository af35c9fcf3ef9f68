package pe

import (
	"errors"
	"testing"
)

func TestReaderLittleEndian(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})

	if v, err := r.U16(0); err != nil || v != 0x0201 {
		t.Errorf("U16 = 0x%x, %v", v, err)
	}
	if v, err := r.U32(4); err != nil || v != 0x08070605 {
		t.Errorf("U32 = 0x%x, %v", v, err)
	}
	if v, err := r.U64(0); err != nil || v != 0x0807060504030201 {
		t.Errorf("U64 = 0x%x, %v", v, err)
	}
	if v, err := r.U8(7); err != nil || v != 0x08 {
		t.Errorf("U8 = 0x%x, %v", v, err)
	}
}

func TestReaderBounds(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	if _, err := r.U32(0); !errors.Is(err, ErrTruncated) {
		t.Errorf("U32 past end: err = %v", err)
	}
	if _, err := r.U16(-1); !errors.Is(err, ErrTruncated) {
		t.Errorf("negative offset: err = %v", err)
	}
	if _, err := r.Bytes(2, 2); !errors.Is(err, ErrTruncated) {
		t.Errorf("Bytes past end: err = %v", err)
	}
}

func TestReaderCString(t *testing.T) {
	r := NewReader([]byte("abc\x00def"))
	if s := r.CString(0, 100); s != "abc" {
		t.Errorf("CString = %q", s)
	}
	if s := r.CString(4, 100); s != "def" {
		t.Errorf("unterminated CString = %q", s)
	}
	if s := r.CString(4, 2); s != "de" {
		t.Errorf("bounded CString = %q", s)
	}
	if s := r.CString(50, 2); s != "" {
		t.Errorf("out of range CString = %q", s)
	}
}
