package wasm

import (
	"errors"
	"fmt"

	"github.com/wippyai/wasm-embed/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// ParseModule decodes the structure of a WebAssembly binary module.
//
// Every section is checked for framing and canonical order. Function bodies
// are framed but their instructions are not decoded.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data, 0)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	var lastOrder int
	var funcCount *uint32

	for r.Len() > 0 {
		id, _ := r.ReadByte()
		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		start := r.Position()
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, r.WrapError(fmt.Sprintf("%s section", SectionName(id)), err)
		}

		if id != SectionCustom {
			if id > SectionDataCount {
				return nil, fmt.Errorf("unknown section id %d at offset %d", id, start)
			}
			order := sectionOrder(id)
			if order <= lastOrder {
				return nil, fmt.Errorf("%s section appears out of order", SectionName(id))
			}
			lastOrder = order
		}

		sr := binary.NewReader(payload, start)
		switch id {
		case SectionCustom:
			err = parseCustomSection(sr, m)
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
			n := uint32(len(m.Funcs))
			funcCount = &n
		case SectionTable:
			err = parseTableSection(sr, m)
		case SectionMemory:
			err = parseMemorySection(sr, m)
		case SectionGlobal:
			err = parseGlobalSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionStart:
			var idx uint32
			idx, err = sr.ReadU32()
			m.Start = &idx
		case SectionElement:
			if m.ElementCount, err = sr.ReadU32(); err == nil {
				err = sr.Skip(sr.Len())
			}
		case SectionDataCount:
			var n uint32
			n, err = sr.ReadU32()
			m.DataCount = &n
		case SectionCode:
			err = parseCodeSection(sr, m)
		case SectionData:
			if m.DataSegments, err = sr.ReadU32(); err == nil {
				err = sr.Skip(sr.Len())
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%s section: %w", SectionName(id), err)
		}
		if sr.Len() != 0 {
			return nil, fmt.Errorf("%s section: %d trailing bytes", SectionName(id), sr.Len())
		}
	}

	defined := uint32(0)
	if funcCount != nil {
		defined = *funcCount
	}
	if int(defined) != len(m.Code) {
		return nil, fmt.Errorf("function and code section have inconsistent lengths: %d != %d", defined, len(m.Code))
	}
	return m, nil
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return r.WrapError("custom section name", err)
	}
	data, _ := r.ReadBytes(r.Len())
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: append([]byte(nil), data...),
	})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, 0, min(count, 1024))
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return r.WrapError(fmt.Sprintf("type %d", i), fmt.Errorf("unsupported type form 0x%02x", form))
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, r.WrapError("value types", fmt.Errorf("count %d exceeds section", n))
	}
	types := make([]ValType, n)
	for i := range types {
		b, _ := r.ReadByte()
		vt := ValType(b)
		if !validValType(vt) {
			return nil, r.WrapError("value type", fmt.Errorf("invalid value type 0x%02x", b))
		}
		types[i] = vt
	}
	return types, nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		imp, err := readImport(r)
		if err != nil {
			return fmt.Errorf("import %d: %w", i, err)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func readImport(r *binary.Reader) (Import, error) {
	var imp Import
	var err error
	if imp.Module, err = r.ReadName(); err != nil {
		return imp, err
	}
	if imp.Name, err = r.ReadName(); err != nil {
		return imp, err
	}
	imp.Desc, err = readImportDesc(r)
	return imp, err
}

func readImportDesc(r *binary.Reader) (ImportDesc, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return ImportDesc{}, err
	}
	desc := ImportDesc{Kind: kind}
	switch kind {
	case KindFunc:
		desc.TypeIdx, err = r.ReadU32()
	case KindTable:
		var tt TableType
		tt, err = readTableType(r)
		desc.Table = &tt
	case KindMemory:
		var lim Limits
		lim, err = readLimits(r)
		desc.Memory = &MemoryType{Limits: lim}
	case KindGlobal:
		var gt GlobalType
		gt, err = readGlobalType(r)
		desc.Global = &gt
	default:
		err = r.WrapError("import kind", fmt.Errorf("invalid import kind 0x%02x", kind))
	}
	return desc, err
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags&^(limitsHasMax|limitsShared) != 0 {
		return Limits{}, r.WrapError("limits", fmt.Errorf("invalid limits flags 0x%02x", flags))
	}
	var l Limits
	if l.Min, err = r.ReadU32(); err != nil {
		return l, err
	}
	if flags&limitsHasMax != 0 {
		hi, err := r.ReadU32()
		if err != nil {
			return l, err
		}
		l.Max = &hi
	}
	l.Shared = flags&limitsShared != 0
	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	elem := ValType(b)
	if !elem.IsRef() {
		return TableType{}, r.WrapError("table type", fmt.Errorf("invalid element type 0x%02x", b))
	}
	lim, err := readLimits(r)
	return TableType{ElemType: elem, Limits: lim}, err
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	vt := ValType(b)
	if !validValType(vt) {
		return GlobalType{}, r.WrapError("global type", fmt.Errorf("invalid value type 0x%02x", b))
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, r.WrapError("global type", fmt.Errorf("invalid mutability 0x%02x", mut))
	}
	return GlobalType{ValType: vt, Mutable: mut == 1}, nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Funcs = make([]uint32, 0, min(count, 4096))
	for i := uint32(0); i < count; i++ {
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Funcs = append(m.Funcs, idx)
	}
	return nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		tt, err := readTableType(r)
		if err != nil {
			return err
		}
		m.Tables = append(m.Tables, tt)
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		lim, err := readLimits(r)
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, MemoryType{Limits: lim})
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readConstExpr(r)
		if err != nil {
			return fmt.Errorf("global %d init: %w", i, err)
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

// readConstExpr reads a single-instruction constant expression including
// its end opcode.
func readConstExpr(r *binary.Reader) ([]byte, error) {
	start := r.Position()
	var expr []byte
	op, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	expr = append(expr, op)
	switch op {
	case OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return nil, err
		}
		expr = binary.AppendS64(expr, int64(v))
	case OpI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return nil, err
		}
		expr = binary.AppendS64(expr, v)
	case OpF32Const:
		b, err := r.ReadBytes(4)
		if err != nil {
			return nil, err
		}
		expr = append(expr, b...)
	case OpF64Const:
		b, err := r.ReadBytes(8)
		if err != nil {
			return nil, err
		}
		expr = append(expr, b...)
	case OpGlobalGet, OpRefFunc:
		idx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		expr = binary.AppendU32(expr, idx)
	case OpRefNull:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		expr = append(expr, b)
	default:
		return nil, fmt.Errorf("unsupported constant opcode 0x%02x at offset %d", op, start)
	}
	end, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if end != OpEnd {
		return nil, fmt.Errorf("constant expression at offset %d not terminated", start)
	}
	return append(expr, OpEnd), nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return fmt.Errorf("export %d: %w", i, err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind > KindGlobal {
			return r.WrapError("export kind", fmt.Errorf("invalid export kind 0x%02x", kind))
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Index: idx})
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		offset := r.Position()
		body, err := r.ReadBytes(int(size))
		if err != nil {
			return fmt.Errorf("function body %d: %w", i, err)
		}
		fb, err := readFuncBody(body, offset)
		if err != nil {
			return fmt.Errorf("function body %d: %w", i, err)
		}
		m.Code = append(m.Code, fb)
	}
	return nil
}

func readFuncBody(body []byte, offset int) (FuncBody, error) {
	br := binary.NewReader(body, offset)
	groups, err := br.ReadU32()
	if err != nil {
		return FuncBody{}, err
	}
	var locals uint64
	for g := uint32(0); g < groups; g++ {
		n, err := br.ReadU32()
		if err != nil {
			return FuncBody{}, err
		}
		b, err := br.ReadByte()
		if err != nil {
			return FuncBody{}, err
		}
		if !validValType(ValType(b)) {
			return FuncBody{}, br.WrapError("local type", fmt.Errorf("invalid value type 0x%02x", b))
		}
		locals += uint64(n)
	}
	code, _ := br.ReadBytes(br.Len())
	if len(code) == 0 || code[len(code)-1] != OpEnd {
		return FuncBody{}, fmt.Errorf("body at offset %d missing end opcode", offset)
	}
	return FuncBody{Body: code, Offset: offset, Locals: locals}, nil
}
