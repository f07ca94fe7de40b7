// Package abi holds the low-level rules shared by lowering and lifting:
// alignment, checked arithmetic, NaN canonicalization, char validation and
// the flattening of interface types into core value types.
//
// This package is internal to the transcoder.
package abi
