package transcoder

import (
	"math"
	"strconv"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"

	wasmembed "github.com/wippyai/wasm-embed"
	"github.com/wippyai/wasm-embed/errors"
	"github.com/wippyai/wasm-embed/transcoder/internal/abi"
	"github.com/wippyai/wasm-embed/transcoder/internal/layout"
)

// Lowerer converts host values into core values and guest memory.
// Every buffer it allocates is recorded in the allocation list so the caller
// can release them when the call fails.
type Lowerer struct {
	mem    Memory
	alloc  Allocator
	layout *layout.Calculator
	allocs *AllocationList
}

func NewLowerer(mem Memory, alloc Allocator, allocs *AllocationList) *Lowerer {
	return &Lowerer{
		mem:    mem,
		alloc:  alloc,
		layout: layout.NewCalculator(),
		allocs: allocs,
	}
}

// LowerFlat lowers args onto the stack in parameter order.
func (l *Lowerer) LowerFlat(params []Param, args []wasmembed.Val) ([]uint64, error) {
	if len(args) != len(params) {
		return nil, errors.Arity(errors.PhaseEncode, "arguments", len(params), len(args))
	}
	var flat []uint64
	for i, p := range params {
		var err error
		flat, err = l.flat(flat, p.Type, args[i], []string{p.Name})
		if err != nil {
			return nil, err
		}
	}
	return flat, nil
}

// SpillArgs stores args in one guest buffer laid out as a tuple and returns
// its address.
func (l *Lowerer) SpillArgs(params []Param, args []wasmembed.Val) (uint32, error) {
	if len(args) != len(params) {
		return 0, errors.Arity(errors.PhaseEncode, "arguments", len(params), len(args))
	}
	types := make([]wit.Type, len(params))
	for i, p := range params {
		types[i] = p.Type
	}
	info := l.layout.Sequence(types)
	ptr, err := l.allocate(info.Size, info.Align, nil)
	if err != nil {
		return 0, err
	}
	for i, p := range params {
		if err := l.Store(p.Type, args[i], ptr+info.Offsets[i], []string{p.Name}); err != nil {
			return 0, err
		}
	}
	return ptr, nil
}

func (l *Lowerer) flat(dst []uint64, t wit.Type, v wasmembed.Val, path []string) ([]uint64, error) {
	switch typ := t.(type) {
	case wit.String:
		if v.Kind() != wasmembed.KindString {
			return nil, mismatch(errors.PhaseEncode, path, t, v)
		}
		ptr, n, err := l.lowerString(v.Str(), path)
		if err != nil {
			return nil, err
		}
		return append(dst, uint64(ptr), uint64(n)), nil

	case *wit.TypeDef:
		switch kind := typ.Kind.(type) {
		case *wit.List:
			ptr, n, err := l.lowerList(kind.Type, v, path)
			if err != nil {
				return nil, err
			}
			return append(dst, uint64(ptr), uint64(n)), nil
		case *wit.Record, *wit.Tuple:
			types, names := members(typ)
			elems, err := l.members(typ, types, v, path)
			if err != nil {
				return nil, err
			}
			for i, e := range elems {
				if dst, err = l.flat(dst, types[i], e, child(path, names[i])); err != nil {
					return nil, err
				}
			}
			return dst, nil
		case wit.Type:
			return l.flat(dst, kind, v, path)
		}
		return nil, errors.Unsupported(errors.PhaseEncode, "type "+TypeString(t))
	}

	bits, err := scalarBits(t, v, path)
	if err != nil {
		return nil, err
	}
	return append(dst, bits), nil
}

// Store writes v at addr using the in-memory layout of t.
func (l *Lowerer) Store(t wit.Type, v wasmembed.Val, addr uint32, path []string) error {
	info := l.layout.Calculate(t)
	if !abi.InBounds(addr, info.Size, l.mem.Size()) {
		return errors.OutOfBounds(errors.PhaseEncode, path, uint64(addr), uint64(info.Size), uint64(l.mem.Size()))
	}

	switch typ := t.(type) {
	case wit.String:
		if v.Kind() != wasmembed.KindString {
			return mismatch(errors.PhaseEncode, path, t, v)
		}
		ptr, n, err := l.lowerString(v.Str(), path)
		if err != nil {
			return err
		}
		return l.writePair(addr, ptr, n, path)

	case *wit.TypeDef:
		switch kind := typ.Kind.(type) {
		case *wit.List:
			ptr, n, err := l.lowerList(kind.Type, v, path)
			if err != nil {
				return err
			}
			return l.writePair(addr, ptr, n, path)
		case *wit.Record, *wit.Tuple:
			types, names := members(typ)
			elems, err := l.members(typ, types, v, path)
			if err != nil {
				return err
			}
			for i, e := range elems {
				if err := l.Store(types[i], e, addr+info.Offsets[i], child(path, names[i])); err != nil {
					return err
				}
			}
			return nil
		case wit.Type:
			return l.Store(kind, v, addr, path)
		}
		return errors.Unsupported(errors.PhaseEncode, "type "+TypeString(t))
	}

	bits, err := scalarBits(t, v, path)
	if err != nil {
		return err
	}
	switch info.Size {
	case 1:
		err = l.mem.WriteU8(addr, uint8(bits))
	case 2:
		err = l.mem.WriteU16(addr, uint16(bits))
	case 4:
		err = l.mem.WriteU32(addr, uint32(bits))
	case 8:
		err = l.mem.WriteU64(addr, bits)
	default:
		return errors.Unsupported(errors.PhaseEncode, "type "+TypeString(t))
	}
	if err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "store "+TypeString(t))
	}
	return nil
}

func (l *Lowerer) writePair(addr, ptr, n uint32, path []string) error {
	if err := l.mem.WriteU32(addr, ptr); err != nil {
		return errors.New(errors.PhaseEncode, errors.KindOutOfBounds).Path(path...).Cause(err).Build()
	}
	if err := l.mem.WriteU32(addr+4, n); err != nil {
		return errors.New(errors.PhaseEncode, errors.KindOutOfBounds).Path(path...).Cause(err).Build()
	}
	return nil
}

// lowerString copies s into a fresh guest buffer. Empty strings are passed
// as (0, 0) without allocating.
func (l *Lowerer) lowerString(s string, path []string) (uint32, uint32, error) {
	if !utf8.ValidString(s) {
		return 0, 0, errors.InvalidUTF8(errors.PhaseEncode, path, []byte(s))
	}
	if len(s) > abi.MaxStringSize {
		return 0, 0, errors.Overflow(errors.PhaseEncode, path, len(s), "string")
	}
	if len(s) == 0 {
		return 0, 0, nil
	}
	n := uint32(len(s))
	ptr, err := l.allocate(n, 1, path)
	if err != nil {
		return 0, 0, err
	}
	if err := l.mem.Write(ptr, []byte(s)); err != nil {
		return 0, 0, errors.New(errors.PhaseEncode, errors.KindOutOfBounds).
			Path(path...).
			WitType("string").
			Cause(err).
			Build()
	}
	return ptr, n, nil
}

func (l *Lowerer) lowerList(elem wit.Type, v wasmembed.Val, path []string) (uint32, uint32, error) {
	if v.Kind() != wasmembed.KindList {
		return 0, 0, errors.TypeMismatch(errors.PhaseEncode, path, "list<"+TypeString(elem)+">", v.Kind().String())
	}
	elems := v.Elems()
	if len(elems) > abi.MaxListLength {
		return 0, 0, errors.Overflow(errors.PhaseEncode, path, len(elems), "list")
	}
	if len(elems) == 0 {
		return 0, 0, nil
	}
	info := l.layout.Calculate(elem)
	size, ok := abi.SafeMulU32(uint32(len(elems)), info.Size)
	if !ok {
		return 0, 0, errors.Overflow(errors.PhaseEncode, path, len(elems), "list")
	}
	ptr, err := l.allocate(size, info.Align, path)
	if err != nil {
		return 0, 0, err
	}
	for i, e := range elems {
		if err := l.Store(elem, e, ptr+uint32(i)*info.Size, child(path, "["+strconv.Itoa(i)+"]")); err != nil {
			return 0, 0, err
		}
	}
	return ptr, uint32(len(elems)), nil
}

// members checks that v carries one value per member of a record or tuple.
func (l *Lowerer) members(t *wit.TypeDef, types []wit.Type, v wasmembed.Val, path []string) ([]wasmembed.Val, error) {
	want := wasmembed.KindTuple
	if _, ok := t.Kind.(*wit.Record); ok {
		want = wasmembed.KindRecord
	}
	if v.Kind() != want {
		return nil, mismatch(errors.PhaseEncode, path, t, v)
	}
	elems := v.Elems()
	if len(elems) != len(types) {
		return nil, errors.New(errors.PhaseEncode, errors.KindArity).
			Path(path...).
			WitType(TypeString(t)).
			Detail("expected %d members, got %d", len(types), len(elems)).
			Build()
	}
	return elems, nil
}

func (l *Lowerer) allocate(size, align uint32, path []string) (uint32, error) {
	if l.alloc == nil {
		return 0, errors.New(errors.PhaseEncode, errors.KindAllocation).
			Path(path...).
			Detail("module exports no allocator").
			Build()
	}
	ptr, err := l.alloc.Alloc(size, align)
	if err != nil {
		return 0, errors.New(errors.PhaseEncode, errors.KindAllocation).
			Path(path...).
			Detail("allocate %d bytes (align %d)", size, align).
			Cause(err).
			Build()
	}
	if l.allocs != nil {
		l.allocs.Add(ptr, size, align)
	}
	return ptr, nil
}

// scalarBits returns the flat i32/i64/f32/f64 bits for a scalar. Besides the
// matching interface kind it accepts the core kind of the same width, range
// checked against the interface type.
func scalarBits(t wit.Type, v wasmembed.Val, path []string) (uint64, error) {
	k := v.Kind()
	switch t.(type) {
	case wit.Bool:
		switch k {
		case wasmembed.KindBool:
			if v.Bool() {
				return 1, nil
			}
			return 0, nil
		case wasmembed.KindI32:
			if v.I32() != 0 {
				return 1, nil
			}
			return 0, nil
		}
	case wit.S8:
		switch k {
		case wasmembed.KindS8:
			return uint64(uint32(int32(v.S8()))), nil
		case wasmembed.KindI32:
			return signed32(v.I32(), math.MinInt8, math.MaxInt8, "s8", path)
		}
	case wit.U8:
		switch k {
		case wasmembed.KindU8:
			return uint64(v.U8()), nil
		case wasmembed.KindI32:
			return signed32(v.I32(), 0, math.MaxUint8, "u8", path)
		}
	case wit.S16:
		switch k {
		case wasmembed.KindS16:
			return uint64(uint32(int32(v.S16()))), nil
		case wasmembed.KindI32:
			return signed32(v.I32(), math.MinInt16, math.MaxInt16, "s16", path)
		}
	case wit.U16:
		switch k {
		case wasmembed.KindU16:
			return uint64(v.U16()), nil
		case wasmembed.KindI32:
			return signed32(v.I32(), 0, math.MaxUint16, "u16", path)
		}
	case wit.S32:
		if k == wasmembed.KindS32 || k == wasmembed.KindI32 {
			return uint64(uint32(v.I32())), nil
		}
	case wit.U32:
		if k == wasmembed.KindU32 || k == wasmembed.KindI32 {
			return uint64(v.U32()), nil
		}
	case wit.S64:
		if k == wasmembed.KindS64 || k == wasmembed.KindI64 {
			return v.U64(), nil
		}
	case wit.U64:
		if k == wasmembed.KindU64 || k == wasmembed.KindI64 {
			return v.U64(), nil
		}
	case wit.F32:
		if k == wasmembed.KindF32 {
			return uint64(abi.CanonicalizeF32(uint32(v.Bits()))), nil
		}
	case wit.F64:
		if k == wasmembed.KindF64 {
			return abi.CanonicalizeF64(v.Bits()), nil
		}
	case wit.Char:
		if k == wasmembed.KindChar || k == wasmembed.KindI32 {
			r := v.Char()
			if !abi.ValidateChar(r) {
				return 0, errors.InvalidData(errors.PhaseEncode, path, "invalid unicode scalar value "+strconv.Itoa(int(r)))
			}
			return uint64(uint32(r)), nil
		}
	default:
		return 0, errors.Unsupported(errors.PhaseEncode, "type "+TypeString(t))
	}
	return 0, mismatch(errors.PhaseEncode, path, t, v)
}

func signed32(x int32, lo, hi int64, target string, path []string) (uint64, error) {
	if int64(x) < lo || int64(x) > hi {
		return 0, errors.Overflow(errors.PhaseEncode, path, x, target)
	}
	return uint64(uint32(x)), nil
}

func mismatch(phase errors.Phase, path []string, t wit.Type, v wasmembed.Val) error {
	return errors.TypeMismatch(phase, path, TypeString(t), v.Kind().String())
}

// members returns the member types and path labels of a record or tuple.
func members(t *wit.TypeDef) ([]wit.Type, []string) {
	switch kind := t.Kind.(type) {
	case *wit.Record:
		types := make([]wit.Type, len(kind.Fields))
		names := make([]string, len(kind.Fields))
		for i, f := range kind.Fields {
			types[i] = f.Type
			names[i] = f.Name
		}
		return types, names
	case *wit.Tuple:
		names := make([]string, len(kind.Types))
		for i := range kind.Types {
			names[i] = strconv.Itoa(i)
		}
		return kind.Types, names
	}
	return nil, nil
}

func child(path []string, elem string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}
