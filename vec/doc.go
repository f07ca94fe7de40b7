// Package vec provides owned, length-prefixed vectors for values that cross
// the embedding boundary: wasm binaries, text sources, diagnostics, export
// lists.
//
// A vector is created by one of the New functions (or filled as an out
// parameter with Into) and must be released with Delete exactly once. Data
// returns a borrowed view that is valid until Delete. Live reports the number
// of vectors created and not yet released, which tests use to detect leaks.
//
//	wat := vec.FromString("(module)")
//	defer wat.Delete()
//
//	var wasm vec.ByteVec
//	if err := vec.Into(&wasm, binary); err != nil { ... }
//	defer wasm.Delete()
package vec
