package transcoder

import (
	"strconv"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"

	wasmembed "github.com/wippyai/wasm-embed"
	"github.com/wippyai/wasm-embed/errors"
	"github.com/wippyai/wasm-embed/transcoder/internal/abi"
	"github.com/wippyai/wasm-embed/transcoder/internal/layout"
)

// Lifter reads interface values out of core results and guest memory.
// Lifted strings and lists are copied, so they stay valid after the guest
// frees or reuses the memory they came from.
type Lifter struct {
	mem    Memory
	layout *layout.Calculator
}

func NewLifter(mem Memory) *Lifter {
	return &Lifter{mem: mem, layout: layout.NewCalculator()}
}

// LiftFlat lifts values of the given types from a flat core value sequence.
func (l *Lifter) LiftFlat(types []wit.Type, flat []uint64) ([]wasmembed.Val, error) {
	c := &flatCursor{vals: flat}
	out := make([]wasmembed.Val, len(types))
	for i, t := range types {
		v, err := l.flat(t, c, []string{"result" + strconv.Itoa(i)})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	if c.pos != len(flat) {
		return nil, errors.Arity(errors.PhaseDecode, "flat results", c.pos, len(flat))
	}
	return out, nil
}

// LiftFromMemory lifts values stored as a tuple at ptr.
func (l *Lifter) LiftFromMemory(types []wit.Type, ptr uint32) ([]wasmembed.Val, error) {
	info := l.layout.Sequence(types)
	if ptr%info.Align != 0 {
		return nil, errors.InvalidData(errors.PhaseDecode, []string{"retptr"}, "misaligned result pointer "+strconv.FormatUint(uint64(ptr), 10))
	}
	if !abi.InBounds(ptr, info.Size, l.mem.Size()) {
		return nil, errors.OutOfBounds(errors.PhaseDecode, []string{"retptr"}, uint64(ptr), uint64(info.Size), uint64(l.mem.Size()))
	}
	out := make([]wasmembed.Val, len(types))
	for i, t := range types {
		v, err := l.Load(t, ptr+info.Offsets[i], []string{"result" + strconv.Itoa(i)})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type flatCursor struct {
	vals []uint64
	pos  int
}

func (c *flatCursor) next(path []string) (uint64, error) {
	if c.pos >= len(c.vals) {
		return 0, errors.New(errors.PhaseDecode, errors.KindArity).
			Path(path...).
			Detail("flat results exhausted after %d values", len(c.vals)).
			Build()
	}
	v := c.vals[c.pos]
	c.pos++
	return v, nil
}

func (l *Lifter) flat(t wit.Type, c *flatCursor, path []string) (wasmembed.Val, error) {
	switch typ := t.(type) {
	case wit.String:
		ptr, n, err := pair(c, path)
		if err != nil {
			return wasmembed.Val{}, err
		}
		return l.liftString(ptr, n, path)

	case *wit.TypeDef:
		switch kind := typ.Kind.(type) {
		case *wit.List:
			ptr, n, err := pair(c, path)
			if err != nil {
				return wasmembed.Val{}, err
			}
			return l.liftList(kind.Type, ptr, n, path)
		case *wit.Record, *wit.Tuple:
			types, names := members(typ)
			elems := make([]wasmembed.Val, len(types))
			for i, et := range types {
				v, err := l.flat(et, c, child(path, names[i]))
				if err != nil {
					return wasmembed.Val{}, err
				}
				elems[i] = v
			}
			return compound(typ, elems), nil
		case wit.Type:
			return l.flat(kind, c, path)
		}
		return wasmembed.Val{}, errors.Unsupported(errors.PhaseDecode, "type "+TypeString(t))
	}

	bits, err := c.next(path)
	if err != nil {
		return wasmembed.Val{}, err
	}
	return liftScalar(t, bits, path)
}

func pair(c *flatCursor, path []string) (uint32, uint32, error) {
	ptr, err := c.next(path)
	if err != nil {
		return 0, 0, err
	}
	n, err := c.next(path)
	if err != nil {
		return 0, 0, err
	}
	return uint32(ptr), uint32(n), nil
}

// Load reads a value of type t stored at addr.
func (l *Lifter) Load(t wit.Type, addr uint32, path []string) (wasmembed.Val, error) {
	info := l.layout.Calculate(t)
	if !abi.InBounds(addr, info.Size, l.mem.Size()) {
		return wasmembed.Val{}, errors.OutOfBounds(errors.PhaseDecode, path, uint64(addr), uint64(info.Size), uint64(l.mem.Size()))
	}

	switch typ := t.(type) {
	case wit.String:
		ptr, n, err := l.readPair(addr, path)
		if err != nil {
			return wasmembed.Val{}, err
		}
		return l.liftString(ptr, n, path)

	case *wit.TypeDef:
		switch kind := typ.Kind.(type) {
		case *wit.List:
			ptr, n, err := l.readPair(addr, path)
			if err != nil {
				return wasmembed.Val{}, err
			}
			return l.liftList(kind.Type, ptr, n, path)
		case *wit.Record, *wit.Tuple:
			types, names := members(typ)
			elems := make([]wasmembed.Val, len(types))
			for i, et := range types {
				v, err := l.Load(et, addr+info.Offsets[i], child(path, names[i]))
				if err != nil {
					return wasmembed.Val{}, err
				}
				elems[i] = v
			}
			return compound(typ, elems), nil
		case wit.Type:
			return l.Load(kind, addr, path)
		}
		return wasmembed.Val{}, errors.Unsupported(errors.PhaseDecode, "type "+TypeString(t))
	}

	var (
		bits uint64
		err  error
	)
	switch info.Size {
	case 1:
		var b uint8
		b, err = l.mem.ReadU8(addr)
		bits = uint64(b)
	case 2:
		var h uint16
		h, err = l.mem.ReadU16(addr)
		bits = uint64(h)
	case 4:
		var w uint32
		w, err = l.mem.ReadU32(addr)
		bits = uint64(w)
	case 8:
		bits, err = l.mem.ReadU64(addr)
	default:
		return wasmembed.Val{}, errors.Unsupported(errors.PhaseDecode, "type "+TypeString(t))
	}
	if err != nil {
		return wasmembed.Val{}, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "load "+TypeString(t))
	}
	return liftScalar(t, bits, path)
}

func (l *Lifter) readPair(addr uint32, path []string) (uint32, uint32, error) {
	ptr, err := l.mem.ReadU32(addr)
	if err != nil {
		return 0, 0, errors.New(errors.PhaseDecode, errors.KindOutOfBounds).Path(path...).Cause(err).Build()
	}
	n, err := l.mem.ReadU32(addr + 4)
	if err != nil {
		return 0, 0, errors.New(errors.PhaseDecode, errors.KindOutOfBounds).Path(path...).Cause(err).Build()
	}
	return ptr, n, nil
}

func (l *Lifter) liftString(ptr, n uint32, path []string) (wasmembed.Val, error) {
	if n == 0 {
		return wasmembed.ValString(""), nil
	}
	if n > abi.MaxStringSize {
		return wasmembed.Val{}, errors.Overflow(errors.PhaseDecode, path, n, "string")
	}
	if !abi.InBounds(ptr, n, l.mem.Size()) {
		return wasmembed.Val{}, errors.OutOfBounds(errors.PhaseDecode, path, uint64(ptr), uint64(n), uint64(l.mem.Size()))
	}
	data, err := l.mem.Read(ptr, n)
	if err != nil {
		return wasmembed.Val{}, errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			Path(path...).
			WitType("string").
			Cause(err).
			Build()
	}
	if !utf8.Valid(data) {
		return wasmembed.Val{}, errors.InvalidUTF8(errors.PhaseDecode, path, data)
	}
	return wasmembed.ValString(string(data)), nil
}

func (l *Lifter) liftList(elem wit.Type, ptr, n uint32, path []string) (wasmembed.Val, error) {
	if n == 0 {
		return wasmembed.ValList(), nil
	}
	if n > abi.MaxListLength {
		return wasmembed.Val{}, errors.Overflow(errors.PhaseDecode, path, n, "list")
	}
	info := l.layout.Calculate(elem)
	size, ok := abi.SafeMulU32(n, info.Size)
	if !ok {
		return wasmembed.Val{}, errors.Overflow(errors.PhaseDecode, path, n, "list")
	}
	if ptr%info.Align != 0 {
		return wasmembed.Val{}, errors.InvalidData(errors.PhaseDecode, path, "misaligned list pointer "+strconv.FormatUint(uint64(ptr), 10))
	}
	if !abi.InBounds(ptr, size, l.mem.Size()) {
		return wasmembed.Val{}, errors.OutOfBounds(errors.PhaseDecode, path, uint64(ptr), uint64(size), uint64(l.mem.Size()))
	}
	elems := make([]wasmembed.Val, n)
	for i := uint32(0); i < n; i++ {
		v, err := l.Load(elem, ptr+i*info.Size, child(path, "["+strconv.FormatUint(uint64(i), 10)+"]"))
		if err != nil {
			return wasmembed.Val{}, err
		}
		elems[i] = v
	}
	return wasmembed.ValList(elems...), nil
}

func liftScalar(t wit.Type, bits uint64, path []string) (wasmembed.Val, error) {
	switch t.(type) {
	case wit.Bool:
		return wasmembed.ValBool(uint32(bits) != 0), nil
	case wit.S8:
		return wasmembed.ValS8(int8(bits)), nil
	case wit.U8:
		return wasmembed.ValU8(uint8(bits)), nil
	case wit.S16:
		return wasmembed.ValS16(int16(bits)), nil
	case wit.U16:
		return wasmembed.ValU16(uint16(bits)), nil
	case wit.S32:
		return wasmembed.ValS32(int32(uint32(bits))), nil
	case wit.U32:
		return wasmembed.ValU32(uint32(bits)), nil
	case wit.S64:
		return wasmembed.ValS64(int64(bits)), nil
	case wit.U64:
		return wasmembed.ValU64(bits), nil
	case wit.F32:
		return wasmembed.ValFromBits(wasmembed.KindF32, uint64(abi.CanonicalizeF32(uint32(bits)))), nil
	case wit.F64:
		return wasmembed.ValFromBits(wasmembed.KindF64, abi.CanonicalizeF64(bits)), nil
	case wit.Char:
		r := rune(uint32(bits))
		if !abi.ValidateChar(r) {
			return wasmembed.Val{}, errors.InvalidData(errors.PhaseDecode, path, "invalid unicode scalar value "+strconv.FormatUint(uint64(uint32(bits)), 10))
		}
		return wasmembed.ValChar(r), nil
	}
	return wasmembed.Val{}, errors.Unsupported(errors.PhaseDecode, "type "+TypeString(t))
}

func compound(t *wit.TypeDef, elems []wasmembed.Val) wasmembed.Val {
	if _, ok := t.Kind.(*wit.Record); ok {
		return wasmembed.ValRecord(elems...)
	}
	return wasmembed.ValTuple(elems...)
}
