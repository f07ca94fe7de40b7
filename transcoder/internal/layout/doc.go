// Package layout computes the size, alignment and element offsets of
// interface types in linear memory.
//
// Layout rules:
//   - Primitives: size equals alignment (u8=1, u32=4, u64=8, etc.)
//   - Records and tuples: elements laid out in order with padding
//   - Lists and strings: (pointer, length) pair, contents elsewhere
//
// This package is internal to the transcoder.
package layout
