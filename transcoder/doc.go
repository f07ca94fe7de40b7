// Package transcoder moves interface-typed values across the guest boundary.
//
// Exports annotated in a module's "interface-types" custom section take and
// return strings, lists, records and tuples in addition to core numbers. The
// transcoder lowers host values into core values and guest memory before a
// call, and lifts core results back into host values afterwards.
//
// # Signatures
//
// The custom section holds one declaration per export:
//
//	greet: func(name: string) -> string;
//	sum: func(xs: list<s32>) -> s64;
//	point: func() -> record { x: f64, y: f64 };
//
// ParseSignatures returns them in declaration order.
//
// # Memory Layout
//
//	Type            Size    Alignment
//	──────────────────────────────────
//	bool            1       1
//	u8/s8           1       1
//	u16/s16         2       2
//	u32/s32/f32     4       4
//	u64/s64/f64     8       8
//	char            4       4
//	string          8       4 (ptr + len)
//	list<T>         8       4 (ptr + len)
//	record/tuple    sum     max member align
//
// # Flattening
//
// On the stack a string or list is a (ptr, len) pair of i32 and records and
// tuples are their members in order:
//
//	set: func(s: string)
//	Core: (i32, i32) -> ()
//
// When a signature flattens to more than MaxFlatParams values the arguments
// are stored in one buffer and passed by pointer. Results that flatten to
// more than one value come back through a pointer to a tuple.
//
// # Allocation
//
// Lowering allocates through an Allocator, normally backed by the guest's
// cabi_realloc export. Every buffer is recorded in an AllocationList so the
// caller can free them if the call fails. Empty strings and lists do not
// allocate and are passed as (0, 0).
//
// # Errors
//
// Errors use the structured types from the errors package:
//
//	[encode] invalid_utf8 at name: invalid UTF-8 sequence: ff
//	[decode] out_of_bounds at result0: range [65530, 65546) exceeds memory size 65536
package transcoder
