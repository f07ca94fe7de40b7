package abi

import "math"

func SafeMulU32(a, b uint32) (uint32, bool) {
	if b != 0 && a > math.MaxUint32/b {
		return 0, false
	}
	return a * b, true
}

func SafeAddU32(a, b uint32) (uint32, bool) {
	if a > math.MaxUint32-b {
		return 0, false
	}
	return a + b, true
}

func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

const (
	CanonicalNaN32 = 0x7fc00000
	CanonicalNaN64 = 0x7ff8000000000000
)

const (
	MaxStringSize = 1 << 30
	MaxListLength = 1 << 27
)

// CanonicalizeF32 maps every NaN to the canonical quiet NaN.
func CanonicalizeF32(bits uint32) uint32 {
	f := math.Float32frombits(bits)
	if f != f {
		return CanonicalNaN32
	}
	return bits
}

// CanonicalizeF64 maps every NaN to the canonical quiet NaN.
func CanonicalizeF64(bits uint64) uint64 {
	f := math.Float64frombits(bits)
	if f != f {
		return CanonicalNaN64
	}
	return bits
}

// ValidateChar rejects surrogates and values past the last code point.
func ValidateChar(r rune) bool {
	if r >= 0xD800 && r <= 0xDFFF {
		return false
	}
	return r >= 0 && r < 0x110000
}

// InBounds reports whether [offset, offset+length) lies within size bytes.
func InBounds(offset, length, size uint32) bool {
	return uint64(offset)+uint64(length) <= uint64(size)
}
