package emulator

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

// bytesAt serves a byte slice at a fixed base address.
type bytesAt struct {
	base uint64
	b    []byte
}

func (s bytesAt) ByteAt(addr uint64) byte {
	if addr < s.base || addr-s.base >= uint64(len(s.b)) {
		return 0
	}
	return s.b[addr-s.base]
}

const testBase = 0x140001000

func decodeHex(t *testing.T, h string) *Instruction {
	t.Helper()
	code, err := hex.DecodeString(strings.ReplaceAll(h, " ", ""))
	if err != nil {
		t.Fatalf("bad hex %q: %v", h, err)
	}
	in, err := NewDecoder(bytesAt{testBase, code}).Decode(testBase)
	if err != nil {
		t.Fatalf("Decode(%s): %v", h, err)
	}
	return in
}

func TestDecodeAndRspImm8(t *testing.T) {
	in := decodeHex(t, "48 83 E4 F0")
	if in.Mnemonic != And {
		t.Fatalf("mnemonic = %s, want and", in.Mnemonic)
	}
	if in.Length != 4 {
		t.Errorf("length = %d, want 4", in.Length)
	}
	dst, src := in.Operands[0], in.Operands[1]
	if dst.Kind != OperandRegister || dst.Reg != RSP || dst.Width != 64 {
		t.Errorf("dst = %+v, want rsp/64", dst)
	}
	if src.Kind != OperandImmediate || src.Imm != -16 || src.Width != 64 {
		t.Errorf("src = %+v, want imm -16/64", src)
	}
	if got := in.String(); got != "and rsp, -0x10" {
		t.Errorf("String = %q", got)
	}
}

func TestDecodeOrRaxRbx(t *testing.T) {
	in := decodeHex(t, "48 09 D8")
	if in.Mnemonic != Or || in.Length != 3 {
		t.Fatalf("got %s len %d", in.Mnemonic, in.Length)
	}
	if in.Operands[0].Reg != RAX || in.Operands[1].Reg != RBX {
		t.Errorf("operands = %s", in)
	}
	if in.String() != "or rax, rbx" {
		t.Errorf("String = %q", in.String())
	}
}

func TestDecodeMovEaxImm(t *testing.T) {
	in := decodeHex(t, "B8 01 00 00 00")
	if in.Mnemonic != Mov || in.Length != 5 {
		t.Fatalf("got %s len %d", in.Mnemonic, in.Length)
	}
	dst, src := in.Operands[0], in.Operands[1]
	if dst.Reg != RAX || dst.Width != 32 || dst.String() != "eax" {
		t.Errorf("dst = %+v", dst)
	}
	if src.Imm != 1 || src.Width != 32 {
		t.Errorf("src = %+v", src)
	}
}

func TestDecodeMovImm64(t *testing.T) {
	in := decodeHex(t, "49 B8 88 77 66 55 44 33 22 11")
	if in.Length != 10 || in.Operands[0].Reg != R8 || in.Operands[0].Width != 64 {
		t.Fatalf("got %s len %d", in, in.Length)
	}
	if uint64(in.Operands[1].Imm) != 0x1122334455667788 {
		t.Errorf("imm = 0x%x", in.Operands[1].Imm)
	}
}

func TestDecodeMemoryOperands(t *testing.T) {
	in := decodeHex(t, "4C 8D 04 8B") // lea r8, [rbx+rcx*4]
	if in.Mnemonic != Lea || in.Operands[0].Reg != R8 {
		t.Fatalf("got %s", in)
	}
	m := in.Operands[1].Mem
	if m.Base != RBX || m.Index != RCX || m.Scale != 4 || m.Disp != 0 || m.RIPRelative {
		t.Errorf("mem = %+v", m)
	}

	in = decodeHex(t, "48 8D 0D 10 00 00 00") // lea rcx, [rip+0x10]
	m = in.Operands[1].Mem
	if !m.RIPRelative || m.Disp != 0x10 || m.Base != RegNone {
		t.Errorf("rip-relative mem = %+v", m)
	}

	in = decodeHex(t, "48 8B 04 25 00 10 00 00") // mov rax, [0x1000]
	m = in.Operands[1].Mem
	if m.Base != RegNone || m.Index != RegNone || m.Disp != 0x1000 || in.Length != 8 {
		t.Errorf("absolute mem = %+v len %d", m, in.Length)
	}

	in = decodeHex(t, "42 8B 04 A5 00 00 00 00") // mov eax, [r12*4]
	m = in.Operands[1].Mem
	if m.Index != R12 || m.Scale != 4 || m.Base != RegNone {
		t.Errorf("rex.x index mem = %+v", m)
	}

	in = decodeHex(t, "48 8B 45 F8") // mov rax, [rbp-8]
	m = in.Operands[1].Mem
	if m.Base != RBP || m.Disp != -8 {
		t.Errorf("disp8 mem = %+v", m)
	}
	if in.Operands[1].String() != "qword ptr [rbp-0x8]" {
		t.Errorf("String = %q", in.Operands[1].String())
	}
}

func TestDecodeHighByteRegisters(t *testing.T) {
	in := decodeHex(t, "88 E0")
	if in.Operands[0].Reg != RAX || in.Operands[1].Reg != AH {
		t.Errorf("without REX: %s", in)
	}
	in = decodeHex(t, "40 88 E0")
	if in.Operands[1].Reg != RSP || in.Operands[1].String() != "spl" {
		t.Errorf("with REX: %s", in)
	}
}

func TestDecodeRexCancelledByLegacyPrefix(t *testing.T) {
	in := decodeHex(t, "48 66 89 C8")
	if in.Operands[0].Width != 32 {
		t.Errorf("width = %d, REX should be ignored", in.Operands[0].Width)
	}
	if len(in.Prefixes) != 1 || in.Prefixes[0] != 0x66 {
		t.Errorf("prefixes = %x", in.Prefixes)
	}
}

func TestDecodeBranches(t *testing.T) {
	in := decodeHex(t, "EB FE")
	if in.Mnemonic != Jmp || !in.HasRel || in.Rel != -2 || in.Target() != testBase {
		t.Errorf("jmp rel8: %+v", in)
	}
	in = decodeHex(t, "0F 84 00 01 00 00")
	if in.Mnemonic != Je || in.Rel != 0x100 || in.Length != 6 {
		t.Errorf("je rel32: %+v", in)
	}
	in = decodeHex(t, "E8 FB FF FF FF")
	if in.Mnemonic != Call || in.Target() != testBase {
		t.Errorf("call rel32: %+v", in)
	}
	in = decodeHex(t, "41 FF D3")
	if in.Mnemonic != Call || in.Operands[0].Reg != R11 || in.Operands[0].Width != 64 {
		t.Errorf("call r11: %s", in)
	}
}

func TestDecodeUnsupported(t *testing.T) {
	cases := []struct {
		code   string
		opcode uint16
	}{
		{"CC", 0xCC},
		{"0F 0B", 0x0F0B},
		{"48 83 F8 00", 0x83}, // cmp rax, 0 (group 1 /7)
		{"FF F0", 0xFF},       // push rax via group 5
		{"8D C0", 0x8D},       // lea with register source
	}
	for _, tc := range cases {
		code, _ := hex.DecodeString(strings.ReplaceAll(tc.code, " ", ""))
		_, err := NewDecoder(bytesAt{testBase, code}).Decode(testBase)
		if !errors.Is(err, ErrUnsupportedOpcode) {
			t.Errorf("%s: err = %v, want ErrUnsupportedOpcode", tc.code, err)
			continue
		}
		var de *DecodeError
		if errors.As(err, &de) && de.Opcode != tc.opcode {
			t.Errorf("%s: opcode = 0x%x, want 0x%x", tc.code, de.Opcode, tc.opcode)
		}
	}
}

func TestDecodeTooManyPrefixes(t *testing.T) {
	code := []byte(strings.Repeat("\x66", 20) + "\x90")
	_, err := NewDecoder(bytesAt{testBase, code}).Decode(testBase)
	if !errors.Is(err, ErrUnsupportedOpcode) {
		t.Fatalf("err = %v", err)
	}
}

// TestDecodeLengthMatchesX86asm checks instruction lengths against an
// independent decoder.
func TestDecodeLengthMatchesX86asm(t *testing.T) {
	vectors := []string{
		"48 89 E5",
		"48 8B 45 F8",
		"48 8D 0D 10 00 00 00",
		"4C 8D 04 8B",
		"48 8B 04 25 00 10 00 00",
		"FF 15 F2 0F 00 00",
		"FF 25 F2 0F 00 00",
		"48 C7 C0 FF FF FF FF",
		"C7 44 24 20 01 00 00 00",
		"C6 45 FF 41",
		"88 44 24 20",
		"48 69 C0 E8 03 00 00",
		"6B C0 0A",
		"48 0F AF C1",
		"48 C1 E0 04",
		"48 D1 F8",
		"48 D3 E8",
		"0F B6 C0",
		"0F B7 4D 10",
		"66 0F 1F 44 00 00",
		"0F 1F 84 00 00 00 00 00",
		"0F 28 C1",
		"0F 29 44 24 30",
		"F3 0F 10 45 08",
		"0F 11 05 00 01 00 00",
		"0F 57 C0",
		"41 50",
		"41 5F",
		"49 B8 88 77 66 55 44 33 22 11",
		"0F 84 00 01 00 00",
		"0F 85 F0 FF FF FF",
		"74 05",
		"75 FE",
		"EB FE",
		"E8 00 00 00 00",
		"E9 10 00 00 00",
		"C3",
		"90",
		"F4",
		"48 85 C0",
		"48 39 D8",
		"48 3B 05 00 10 00 00",
		"33 C0",
		"48 31 C9",
		"48 81 EC 28 01 00 00",
		"48 83 C4 28",
		"41 83 F0 01",
		"48 21 D0",
		"48 23 0C 24",
		"48 0B 4C 24 08",
		"FF E0",
		"41 FF D3",
		"42 8B 04 A5 00 00 00 00",
		"4D 8B 84 24 80 00 00 00",
	}
	for _, v := range vectors {
		code, err := hex.DecodeString(strings.ReplaceAll(v, " ", ""))
		if err != nil {
			t.Fatalf("bad vector %q", v)
		}
		in, err := NewDecoder(bytesAt{testBase, code}).Decode(testBase)
		if err != nil {
			t.Errorf("%s: %v", v, err)
			continue
		}
		ref, err := x86asm.Decode(code, 64)
		if err != nil {
			t.Errorf("%s: x86asm: %v", v, err)
			continue
		}
		if in.Length != ref.Len {
			t.Errorf("%s (%s): length %d, x86asm says %d", v, in, in.Length, ref.Len)
		}
		if in.Length != len(code) {
			t.Errorf("%s: length %d, vector has %d bytes", v, in.Length, len(code))
		}
	}
}
