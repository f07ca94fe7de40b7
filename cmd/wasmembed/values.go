package main

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"

	wasmembed "github.com/wippyai/wasm-embed"
	"github.com/wippyai/wasm-embed/transcoder"
	"github.com/wippyai/wasm-embed/wasm"
)

// parseCoreArg converts a command-line argument to a core value of type t.
func parseCoreArg(s string, t wasm.ValType) (wasmembed.Val, error) {
	switch t {
	case wasm.ValI32:
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			// Accept the unsigned spelling of negative i32s.
			u, uerr := strconv.ParseUint(s, 0, 32)
			if uerr != nil {
				return wasmembed.Val{}, err
			}
			v = int64(int32(uint32(u)))
		}
		return wasmembed.ValI32(int32(v)), nil
	case wasm.ValI64:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return wasmembed.Val{}, err
		}
		return wasmembed.ValI64(v), nil
	case wasm.ValF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return wasmembed.Val{}, err
		}
		return wasmembed.ValF32(float32(v)), nil
	case wasm.ValF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return wasmembed.Val{}, err
		}
		return wasmembed.ValF64(v), nil
	}
	return wasmembed.Val{}, fmt.Errorf("%s arguments cannot be given on the command line", t)
}

// parseInterfaceArg converts a command-line argument to an interface value
// of type t. Lists and tuples are comma separated; strings are taken
// verbatim.
func parseInterfaceArg(s string, t wit.Type) (wasmembed.Val, error) {
	switch t := t.(type) {
	case wit.String:
		return wasmembed.ValString(s), nil
	case wit.Bool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return wasmembed.Val{}, err
		}
		return wasmembed.ValBool(v), nil
	case wit.Char:
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError || size != len(s) {
			return wasmembed.Val{}, fmt.Errorf("%q is not a single character", s)
		}
		return wasmembed.ValChar(r), nil
	case wit.S8, wit.S16, wit.S32, wit.S64:
		v, err := strconv.ParseInt(s, 0, bitSize(t))
		if err != nil {
			return wasmembed.Val{}, err
		}
		switch t.(type) {
		case wit.S8:
			return wasmembed.ValS8(int8(v)), nil
		case wit.S16:
			return wasmembed.ValS16(int16(v)), nil
		case wit.S32:
			return wasmembed.ValS32(int32(v)), nil
		}
		return wasmembed.ValS64(v), nil
	case wit.U8, wit.U16, wit.U32, wit.U64:
		v, err := strconv.ParseUint(s, 0, bitSize(t))
		if err != nil {
			return wasmembed.Val{}, err
		}
		switch t.(type) {
		case wit.U8:
			return wasmembed.ValU8(uint8(v)), nil
		case wit.U16:
			return wasmembed.ValU16(uint16(v)), nil
		case wit.U32:
			return wasmembed.ValU32(uint32(v)), nil
		}
		return wasmembed.ValU64(v), nil
	case wit.F32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return wasmembed.Val{}, err
		}
		return wasmembed.ValF32(float32(v)), nil
	case wit.F64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return wasmembed.Val{}, err
		}
		return wasmembed.ValF64(v), nil
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.List:
			if s == "" {
				return wasmembed.ValList(), nil
			}
			parts := strings.Split(s, ",")
			elems := make([]wasmembed.Val, len(parts))
			for i, p := range parts {
				v, err := parseInterfaceArg(strings.TrimSpace(p), kind.Type)
				if err != nil {
					return wasmembed.Val{}, fmt.Errorf("element %d: %w", i, err)
				}
				elems[i] = v
			}
			return wasmembed.ValList(elems...), nil
		case *wit.Tuple:
			parts := strings.Split(s, ",")
			if len(parts) != len(kind.Types) {
				return wasmembed.Val{}, fmt.Errorf("expected %d tuple elements, got %d", len(kind.Types), len(parts))
			}
			elems := make([]wasmembed.Val, len(parts))
			for i, p := range parts {
				v, err := parseInterfaceArg(strings.TrimSpace(p), kind.Types[i])
				if err != nil {
					return wasmembed.Val{}, fmt.Errorf("element %d: %w", i, err)
				}
				elems[i] = v
			}
			return wasmembed.ValTuple(elems...), nil
		}
	}
	return wasmembed.Val{}, fmt.Errorf("%s arguments cannot be given on the command line", transcoder.TypeString(t))
}

func bitSize(t wit.Type) int {
	switch t.(type) {
	case wit.S8, wit.U8:
		return 8
	case wit.S16, wit.U16:
		return 16
	case wit.S32, wit.U32:
		return 32
	}
	return 64
}

func formatResults(vals []wasmembed.Val) string {
	if len(vals) == 0 {
		return "()"
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, " ")
}
