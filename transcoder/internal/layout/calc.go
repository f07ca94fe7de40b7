package layout

import (
	"github.com/wippyai/wasm-embed/transcoder/internal/abi"
	"go.bytecodealliance.org/wit"
)

// Info is the in-memory layout of a type. Offsets holds the byte offset of
// each record field or tuple element in declaration order.
type Info struct {
	Offsets []uint32
	Size    uint32
	Align   uint32
}

// Calculator computes layouts, caching results per type definition.
type Calculator struct {
	cache map[*wit.TypeDef]Info
}

func NewCalculator() *Calculator {
	return &Calculator{
		cache: make(map[*wit.TypeDef]Info),
	}
}

func (c *Calculator) Calculate(t wit.Type) Info {
	switch typ := t.(type) {
	case wit.U8, wit.S8, wit.Bool:
		return Info{Size: 1, Align: 1}
	case wit.U16, wit.S16:
		return Info{Size: 2, Align: 2}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return Info{Size: 4, Align: 4}
	case wit.U64, wit.S64, wit.F64:
		return Info{Size: 8, Align: 8}
	case wit.String:
		return Info{Size: 8, Align: 4} // [ptr: u32, len: u32]
	case *wit.TypeDef:
		return c.calculateTypeDef(typ)
	default:
		return Info{Size: 0, Align: 1}
	}
}

func (c *Calculator) calculateTypeDef(t *wit.TypeDef) Info {
	if cached, ok := c.cache[t]; ok {
		return cached
	}

	var info Info
	switch kind := t.Kind.(type) {
	case *wit.Record:
		types := make([]wit.Type, len(kind.Fields))
		for i, f := range kind.Fields {
			types[i] = f.Type
		}
		info = c.Sequence(types)
	case *wit.Tuple:
		info = c.Sequence(kind.Types)
	case *wit.List:
		info = Info{Size: 8, Align: 4}
	case wit.Type:
		info = c.Calculate(kind)
	default:
		info = Info{Size: 0, Align: 1}
	}

	c.cache[t] = info
	return info
}

// Sequence lays out types one after another, each at its own alignment,
// and pads the total to the largest alignment.
func (c *Calculator) Sequence(types []wit.Type) Info {
	if len(types) == 0 {
		return Info{Size: 0, Align: 1}
	}

	offsets := make([]uint32, len(types))
	maxAlign := uint32(1)
	offset := uint32(0)

	for i, typ := range types {
		elem := c.Calculate(typ)
		offset = abi.AlignTo(offset, elem.Align)
		offsets[i] = offset
		if elem.Align > maxAlign {
			maxAlign = elem.Align
		}
		offset += elem.Size
	}

	return Info{
		Offsets: offsets,
		Size:    abi.AlignTo(offset, maxAlign),
		Align:   maxAlign,
	}
}
