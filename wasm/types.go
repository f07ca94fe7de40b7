package wasm

import (
	"fmt"
	"strings"
)

// Module is the decoded interface of a WebAssembly binary: its types,
// imports, definitions and exports. Function bodies, element and data
// payloads are not retained.
type Module struct {
	Types          []FuncType
	Imports        []Import
	Funcs          []uint32 // type index per defined function
	Tables         []TableType
	Memories       []MemoryType
	Globals        []Global
	Exports        []Export
	Start          *uint32
	DataCount      *uint32
	CustomSections []CustomSection
	Code           []FuncBody
	ElementCount   uint32
	DataSegments   uint32
}

// ValType represents a WebAssembly value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExternRef:
		return "externref"
	}
	return fmt.Sprintf("valtype(0x%02x)", byte(v))
}

// IsRef reports whether v is a reference type.
func (v ValType) IsRef() bool {
	return v == ValFuncRef || v == ValExternRef
}

func validValType(v ValType) bool {
	switch v {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExternRef:
		return true
	}
	return false
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures are identical.
func (f FuncType) Equal(o FuncType) bool {
	return equalTypes(f.Params, o.Params) && equalTypes(f.Results, o.Results)
}

func (f FuncType) String() string {
	return "(" + joinTypes(f.Params) + ") -> (" + joinTypes(f.Results) + ")"
}

func equalTypes(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinTypes(ts []ValType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// Limits bounds a table or memory size.
type Limits struct {
	Max    *uint32
	Min    uint32
	Shared bool
}

func (l Limits) String() string {
	if l.Max == nil {
		return fmt.Sprintf("%d", l.Min)
	}
	return fmt.Sprintf("%d..%d", l.Min, *l.Max)
}

// TableType describes a table.
type TableType struct {
	Limits   Limits
	ElemType ValType
}

// MemoryType describes a linear memory in pages.
type MemoryType struct {
	Limits Limits
}

// GlobalType describes a global.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

func (g GlobalType) String() string {
	if g.Mutable {
		return "(mut " + g.ValType.String() + ")"
	}
	return g.ValType.String()
}

// Import is one entry of the import section.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// ImportDesc describes an imported item. Exactly one of TypeIdx (for
// functions), Table, Memory or Global is meaningful, selected by Kind.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

// Export is one entry of the export section.
type Export struct {
	Name  string
	Index uint32
	Kind  byte
}

// Global is a defined global with its raw init expression.
type Global struct {
	Init []byte
	Type GlobalType
}

// FuncBody holds the locals declaration and code of a defined function.
type FuncBody struct {
	Body   []byte
	Offset int
	Locals uint64
}

// CustomSection is a named custom section.
type CustomSection struct {
	Name string
	Data []byte
}

// NumImported returns the number of imports of the given kind.
func (m *Module) NumImported(kind byte) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			n++
		}
	}
	return n
}

// FuncTypeAt returns the signature of the function at index idx in the
// function index space (imports first).
func (m *Module) FuncTypeAt(idx uint32) (FuncType, bool) {
	var typeIdx uint32
	found := false
	i := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindFunc {
			continue
		}
		if i == idx {
			typeIdx = imp.Desc.TypeIdx
			found = true
			break
		}
		i++
	}
	if !found {
		local := idx - i
		if idx < i || int(local) >= len(m.Funcs) {
			return FuncType{}, false
		}
		typeIdx = m.Funcs[local]
	}
	if int(typeIdx) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[typeIdx], true
}

// GlobalTypeAt returns the type of the global at idx (imports first).
func (m *Module) GlobalTypeAt(idx uint32) (GlobalType, bool) {
	i := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindGlobal {
			if i == idx {
				return *imp.Desc.Global, true
			}
			i++
		}
	}
	if idx < i || int(idx-i) >= len(m.Globals) {
		return GlobalType{}, false
	}
	return m.Globals[idx-i].Type, true
}

// TableTypeAt returns the type of the table at idx (imports first).
func (m *Module) TableTypeAt(idx uint32) (TableType, bool) {
	i := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindTable {
			if i == idx {
				return *imp.Desc.Table, true
			}
			i++
		}
	}
	if idx < i || int(idx-i) >= len(m.Tables) {
		return TableType{}, false
	}
	return m.Tables[idx-i], true
}

// MemoryTypeAt returns the type of the memory at idx (imports first).
func (m *Module) MemoryTypeAt(idx uint32) (MemoryType, bool) {
	i := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindMemory {
			if i == idx {
				return *imp.Desc.Memory, true
			}
			i++
		}
	}
	if idx < i || int(idx-i) >= len(m.Memories) {
		return MemoryType{}, false
	}
	return m.Memories[idx-i], true
}

// CustomSection returns the payload of the first custom section named name.
func (m *Module) CustomSection(name string) ([]byte, bool) {
	for _, cs := range m.CustomSections {
		if cs.Name == name {
			return cs.Data, true
		}
	}
	return nil, false
}

// ExportByName returns the export named name.
func (m *Module) ExportByName(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}
