// Package wat compiles the WebAssembly text format into binary modules.
//
// Basic usage:
//
//	bin, err := wat.Compile(`(module
//		(func (export "add") (param i32 i32) (result i32)
//			(i32.add (local.get 0) (local.get 1)))
//	)`)
//
// Supported:
//   - Functions with named or indexed params, results and locals
//   - Plain and folded instructions, including if/then/else
//   - Block types with params and multiple results
//   - Imports and exports, inline forms included
//   - Memory, table and global definitions
//   - Active, passive and declarative element and data segments
//   - Bulk memory, reference types, sign extension, saturating truncation
//   - Custom sections via (@custom "name" "bytes")
//
// Not supported: SIMD instructions, threads/atomics, exception handling, GC
// types.
//
// Errors are *Error values carrying the line and column of the offending
// token, so callers can print "line:col: message".
package wat
