package transcoder

import (
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-embed/transcoder/internal/abi"
	"github.com/wippyai/wasm-embed/transcoder/internal/layout"
)

const (
	MaxFlatParams  = abi.MaxFlatParams
	MaxFlatResults = abi.MaxFlatResults
)

// FlatTypes returns the core value types that carry ts on the stack.
func FlatTypes(ts []wit.Type) []api.ValueType {
	return abi.FlattenAll(ts)
}

// SizeAlign returns the in-memory size and alignment of a value sequence laid
// out as a tuple.
func SizeAlign(ts []wit.Type) (size, align uint32) {
	info := layout.NewCalculator().Sequence(ts)
	return info.Size, info.Align
}

// UsesMemory reports whether any of ts is passed through linear memory,
// which is the case for strings and lists at any depth.
func UsesMemory(ts []wit.Type) bool {
	for _, t := range ts {
		if usesMemory(t) {
			return true
		}
	}
	return false
}

func usesMemory(t wit.Type) bool {
	switch typ := t.(type) {
	case wit.String:
		return true
	case *wit.TypeDef:
		switch kind := typ.Kind.(type) {
		case *wit.List:
			return true
		case *wit.Record, *wit.Tuple:
			types, _ := members(typ)
			return UsesMemory(types)
		case wit.Type:
			return usesMemory(kind)
		}
	}
	return false
}
