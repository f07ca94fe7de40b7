package wasmembed

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValKind identifies the type of a Val.
//
// Core kinds use the wasm-c-api numbering (I32=0 ... F64=3, ExternRef=128,
// FuncRef=129). Interface kinds follow from 130 and only appear at adapter
// boundaries.
type ValKind uint8

const (
	KindI32       ValKind = 0
	KindI64       ValKind = 1
	KindF32       ValKind = 2
	KindF64       ValKind = 3
	KindExternRef ValKind = 128
	KindFuncRef   ValKind = 129

	KindString ValKind = 130 + iota - 6
	KindBool
	KindS8
	KindU8
	KindS16
	KindU16
	KindS32
	KindU32
	KindS64
	KindU64
	KindChar
	KindList
	KindRecord
	KindTuple
)

var kindNames = map[ValKind]string{
	KindI32:       "i32",
	KindI64:       "i64",
	KindF32:       "f32",
	KindF64:       "f64",
	KindExternRef: "externref",
	KindFuncRef:   "funcref",
	KindString:    "string",
	KindBool:      "bool",
	KindS8:        "s8",
	KindU8:        "u8",
	KindS16:       "s16",
	KindU16:       "u16",
	KindS32:       "s32",
	KindU32:       "u32",
	KindS64:       "s64",
	KindU64:       "u64",
	KindChar:      "char",
	KindList:      "list",
	KindRecord:    "record",
	KindTuple:     "tuple",
}

func (k ValKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// IsCore reports whether k is a core WebAssembly value kind.
func (k ValKind) IsCore() bool {
	switch k {
	case KindI32, KindI64, KindF32, KindF64, KindExternRef, KindFuncRef:
		return true
	}
	return false
}

// Val is a tagged value crossing the embedding boundary.
//
// Scalars are stored as raw bits. Strings are owned Go strings, so a Val
// returned from a call never aliases guest memory.
type Val struct {
	ref   any
	str   string
	elems []Val
	bits  uint64
	kind  ValKind
}

func ValI32(v int32) Val { return Val{kind: KindI32, bits: uint64(uint32(v))} }
func ValI64(v int64) Val { return Val{kind: KindI64, bits: uint64(v)} }
func ValF32(v float32) Val { return Val{kind: KindF32, bits: uint64(math.Float32bits(v))} }
func ValF64(v float64) Val { return Val{kind: KindF64, bits: math.Float64bits(v)} }
func ValExternRef(v any) Val { return Val{kind: KindExternRef, ref: v} }
func ValString(s string) Val { return Val{kind: KindString, str: s} }
func ValS8(v int8) Val { return Val{kind: KindS8, bits: uint64(v)} }
func ValU8(v uint8) Val { return Val{kind: KindU8, bits: uint64(v)} }
func ValS16(v int16) Val { return Val{kind: KindS16, bits: uint64(v)} }
func ValU16(v uint16) Val { return Val{kind: KindU16, bits: uint64(v)} }
func ValS32(v int32) Val { return Val{kind: KindS32, bits: uint64(v)} }
func ValU32(v uint32) Val { return Val{kind: KindU32, bits: uint64(v)} }
func ValS64(v int64) Val { return Val{kind: KindS64, bits: uint64(v)} }
func ValU64(v uint64) Val { return Val{kind: KindU64, bits: v} }
func ValChar(r rune) Val { return Val{kind: KindChar, bits: uint64(uint32(r))} }

func ValBool(v bool) Val {
	if v {
		return Val{kind: KindBool, bits: 1}
	}
	return Val{kind: KindBool}
}

// ValList builds a list value. Elements must share one kind.
func ValList(elems ...Val) Val { return Val{kind: KindList, elems: elems} }

// ValRecord builds a record value with fields in declaration order.
func ValRecord(fields ...Val) Val { return Val{kind: KindRecord, elems: fields} }

// ValTuple builds a tuple value.
func ValTuple(elems ...Val) Val { return Val{kind: KindTuple, elems: elems} }

// ValFromBits builds a scalar value of kind k from its raw bit pattern.
func ValFromBits(k ValKind, bits uint64) Val {
	return Val{kind: k, bits: bits}
}

func (v Val) Kind() ValKind { return v.kind }
func (v Val) Bits() uint64 { return v.bits }
func (v Val) I32() int32 { return int32(uint32(v.bits)) }
func (v Val) I64() int64 { return int64(v.bits) }
func (v Val) F32() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Val) F64() float64 { return math.Float64frombits(v.bits) }
func (v Val) Bool() bool { return v.bits != 0 }
func (v Val) S8() int8 { return int8(v.bits) }
func (v Val) U8() uint8 { return uint8(v.bits) }
func (v Val) S16() int16 { return int16(v.bits) }
func (v Val) U16() uint16 { return uint16(v.bits) }
func (v Val) S32() int32 { return int32(v.bits) }
func (v Val) U32() uint32 { return uint32(v.bits) }
func (v Val) S64() int64 { return int64(v.bits) }
func (v Val) U64() uint64 { return v.bits }
func (v Val) Char() rune { return rune(uint32(v.bits)) }
func (v Val) Ref() any { return v.ref }
func (v Val) Elems() []Val { return v.elems }
func (v Val) Str() string { return v.str }
func (v Val) Is(k ValKind) bool { return v.kind == k }

// String formats the value for diagnostics.
func (v Val) String() string {
	switch v.kind {
	case KindI32, KindS32:
		return strconv.FormatInt(int64(v.I32()), 10)
	case KindI64, KindS64:
		return strconv.FormatInt(v.I64(), 10)
	case KindF32:
		return strconv.FormatFloat(float64(v.F32()), 'g', -1, 32)
	case KindF64:
		return strconv.FormatFloat(v.F64(), 'g', -1, 64)
	case KindS8:
		return strconv.Itoa(int(v.S8()))
	case KindS16:
		return strconv.Itoa(int(v.S16()))
	case KindU8, KindU16, KindU32, KindU64:
		return strconv.FormatUint(v.bits, 10)
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindChar:
		return strconv.QuoteRune(v.Char())
	case KindString:
		return strconv.Quote(v.str)
	case KindExternRef, KindFuncRef:
		if v.ref == nil {
			return "null"
		}
		return fmt.Sprintf("%s(%v)", v.kind, v.ref)
	case KindList, KindRecord, KindTuple:
		parts := make([]string, len(v.elems))
		for i, e := range v.elems {
			parts[i] = e.String()
		}
		l, r := "[", "]"
		switch v.kind {
		case KindRecord:
			l, r = "{", "}"
		case KindTuple:
			l, r = "(", ")"
		}
		return l + strings.Join(parts, ", ") + r
	}
	return v.kind.String()
}
