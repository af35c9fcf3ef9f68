package emulator

import "testing"

func TestMask(t *testing.T) {
	cases := []struct {
		v    uint64
		bits uint8
		want uint64
	}{
		{0x1234, 8, 0x34},
		{0xFFFFFFFFFFFFFFFF, 32, 0xFFFFFFFF},
		{0xFFFFFFFFFFFFFFFF, 64, 0xFFFFFFFFFFFFFFFF},
		{0x12345, 16, 0x2345},
	}
	for _, tc := range cases {
		if got := Mask(tc.v, tc.bits); got != tc.want {
			t.Errorf("Mask(0x%x, %d) = 0x%x, want 0x%x", tc.v, tc.bits, got, tc.want)
		}
	}
}

func TestSignExtend(t *testing.T) {
	cases := []struct {
		v    uint64
		bits uint8
		want int64
	}{
		{0xF0, 8, -16},
		{0x7F, 8, 127},
		{0xFFFFFFFF, 32, -1},
		{0x80000000, 32, -2147483648},
		{0xFFFFFFFFFFFFFFFE, 64, -2},
		{0x1FF, 8, -1},
	}
	for _, tc := range cases {
		if got := SignExtend(tc.v, tc.bits); got != tc.want {
			t.Errorf("SignExtend(0x%x, %d) = %d, want %d", tc.v, tc.bits, got, tc.want)
		}
	}
}
