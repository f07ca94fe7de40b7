package abi

import (
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

// Flattening limits from the canonical ABI. Signatures that exceed them pass
// values through linear memory instead.
const (
	MaxFlatParams  = 16
	MaxFlatResults = 1
)

// Flatten appends the core value types that represent t on the stack.
func Flatten(dst []api.ValueType, t wit.Type) []api.ValueType {
	switch t := t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return append(dst, api.ValueTypeI32)
	case wit.U64, wit.S64:
		return append(dst, api.ValueTypeI64)
	case wit.F32:
		return append(dst, api.ValueTypeF32)
	case wit.F64:
		return append(dst, api.ValueTypeF64)
	case wit.String:
		return append(dst, api.ValueTypeI32, api.ValueTypeI32)
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.List:
			return append(dst, api.ValueTypeI32, api.ValueTypeI32)
		case *wit.Record:
			for _, f := range kind.Fields {
				dst = Flatten(dst, f.Type)
			}
			return dst
		case *wit.Tuple:
			for _, elem := range kind.Types {
				dst = Flatten(dst, elem)
			}
			return dst
		case wit.Type:
			return Flatten(dst, kind)
		}
	}
	return dst
}

// FlattenAll flattens a sequence of types.
func FlattenAll(ts []wit.Type) []api.ValueType {
	var out []api.ValueType
	for _, t := range ts {
		out = Flatten(out, t)
	}
	return out
}

// FlatCount returns the number of core values t occupies on the stack.
func FlatCount(t wit.Type) int {
	return len(Flatten(nil, t))
}
