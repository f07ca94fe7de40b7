package wasm

import (
	"math"

	"github.com/wippyai/wasm-embed/wasm/internal/binary"
)

// Header returns the 8-byte module preamble.
func Header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}

// AppendULEB128 appends v as unsigned LEB128.
func AppendULEB128(dst []byte, v uint64) []byte {
	return binary.AppendU64(dst, v)
}

// AppendSLEB128 appends v as signed LEB128.
func AppendSLEB128(dst []byte, v int64) []byte {
	return binary.AppendS64(dst, v)
}

// AppendName appends a length-prefixed UTF-8 name.
func AppendName(dst []byte, name string) []byte {
	return binary.AppendName(dst, name)
}

// AppendSection appends a section with its id and size prefix.
func AppendSection(dst []byte, id byte, payload []byte) []byte {
	return binary.AppendSection(dst, id, payload)
}

// AppendCustomSection appends a custom section named name.
func AppendCustomSection(dst []byte, name string, data []byte) []byte {
	payload := binary.AppendName(nil, name)
	payload = append(payload, data...)
	return binary.AppendSection(dst, SectionCustom, payload)
}

// AppendFuncType appends a function type entry.
func AppendFuncType(dst []byte, ft FuncType) []byte {
	dst = append(dst, FuncTypeByte)
	dst = binary.AppendU32(dst, uint32(len(ft.Params)))
	for _, p := range ft.Params {
		dst = append(dst, byte(p))
	}
	dst = binary.AppendU32(dst, uint32(len(ft.Results)))
	for _, r := range ft.Results {
		dst = append(dst, byte(r))
	}
	return dst
}

// AppendLimits appends table or memory limits.
func AppendLimits(dst []byte, l Limits) []byte {
	var flags byte
	if l.Max != nil {
		flags |= limitsHasMax
	}
	if l.Shared {
		flags |= limitsShared
	}
	dst = append(dst, flags)
	dst = binary.AppendU32(dst, l.Min)
	if l.Max != nil {
		dst = binary.AppendU32(dst, *l.Max)
	}
	return dst
}

// AppendTableType appends a table type.
func AppendTableType(dst []byte, tt TableType) []byte {
	dst = append(dst, byte(tt.ElemType))
	return AppendLimits(dst, tt.Limits)
}

// AppendGlobalType appends a global type.
func AppendGlobalType(dst []byte, gt GlobalType) []byte {
	var mut byte
	if gt.Mutable {
		mut = 1
	}
	return append(dst, byte(gt.ValType), mut)
}

// AppendImport appends one import entry.
func AppendImport(dst []byte, imp Import) []byte {
	dst = binary.AppendName(dst, imp.Module)
	dst = binary.AppendName(dst, imp.Name)
	dst = append(dst, imp.Desc.Kind)
	switch imp.Desc.Kind {
	case KindFunc:
		dst = binary.AppendU32(dst, imp.Desc.TypeIdx)
	case KindTable:
		dst = AppendTableType(dst, *imp.Desc.Table)
	case KindMemory:
		dst = AppendLimits(dst, imp.Desc.Memory.Limits)
	case KindGlobal:
		dst = AppendGlobalType(dst, *imp.Desc.Global)
	}
	return dst
}

// AppendExport appends one export entry.
func AppendExport(dst []byte, e Export) []byte {
	dst = binary.AppendName(dst, e.Name)
	dst = append(dst, e.Kind)
	return binary.AppendU32(dst, e.Index)
}

// ConstExpr encodes a constant initializer for a value of type vt whose
// raw bits are bits. Reference types encode ref.null.
func ConstExpr(vt ValType, bits uint64) []byte {
	var expr []byte
	switch vt {
	case ValI32:
		expr = append(expr, OpI32Const)
		expr = binary.AppendS64(expr, int64(int32(uint32(bits))))
	case ValI64:
		expr = append(expr, OpI64Const)
		expr = binary.AppendS64(expr, int64(bits))
	case ValF32:
		b := uint32(bits)
		expr = append(expr, OpF32Const, byte(b), byte(b>>8), byte(b>>16), byte(b>>24))
	case ValF64:
		expr = append(expr, OpF64Const)
		for i := 0; i < 8; i++ {
			expr = append(expr, byte(bits>>(8*i)))
		}
	case ValFuncRef, ValExternRef:
		expr = append(expr, OpRefNull, byte(vt))
	}
	return append(expr, OpEnd)
}

// F32Bits and F64Bits are helpers for building float constants.
func F32Bits(f float32) uint64 { return uint64(math.Float32bits(f)) }
func F64Bits(f float64) uint64 { return math.Float64bits(f) }
