package wasm

import "github.com/wippyai/wasm-embed/wasm/internal/binary"

// ReadULEB128 decodes an unsigned LEB128 value of at most 32 bits from the
// start of b and returns it with the number of bytes consumed.
func ReadULEB128(b []byte) (uint32, int, error) {
	r := binary.NewReader(b, 0)
	v, err := r.ReadU32()
	return v, r.Position(), err
}

// ReadSLEB128 decodes a signed LEB128 value of at most 64 bits.
func ReadSLEB128(b []byte) (int64, int, error) {
	r := binary.NewReader(b, 0)
	v, err := r.ReadS64()
	return v, r.Position(), err
}
