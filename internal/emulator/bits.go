package emulator

// Mask truncates v to the low bits bits. Widths of 64 or more return v.
func Mask(v uint64, bits uint8) uint64 {
	if bits >= 64 {
		return v
	}
	return v & (uint64(1)<<bits - 1)
}

// SignExtend interprets the low bits bits of v as a two's complement value.
func SignExtend(v uint64, bits uint8) int64 {
	if bits >= 64 {
		return int64(v)
	}
	shift := 64 - bits
	return int64(v<<shift) >> shift
}

// signBit reports whether the top bit of a bits-wide value is set.
func signBit(v uint64, bits uint8) bool {
	return v>>(bits-1)&1 == 1
}
