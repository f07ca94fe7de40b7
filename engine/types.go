package engine

import (
	"fmt"
	"strconv"

	"github.com/wippyai/wasm-embed/transcoder"
	"github.com/wippyai/wasm-embed/wasm"
)

// ExternKind identifies what an import or export refers to. The numeric
// values are part of the C-shaped surface.
type ExternKind uint8

const (
	ExternFunc   ExternKind = 0
	ExternGlobal ExternKind = 1
	ExternTable  ExternKind = 2
	ExternMemory ExternKind = 3
)

func (k ExternKind) String() string {
	switch k {
	case ExternFunc:
		return "func"
	case ExternGlobal:
		return "global"
	case ExternTable:
		return "table"
	case ExternMemory:
		return "memory"
	}
	return "extern(" + strconv.Itoa(int(k)) + ")"
}

func kindFromBinary(k byte) ExternKind {
	switch k {
	case wasm.KindGlobal:
		return ExternGlobal
	case wasm.KindTable:
		return ExternTable
	case wasm.KindMemory:
		return ExternMemory
	}
	return ExternFunc
}

// ExternType is the type of an import or export. Exactly one of Func,
// Global, Table and Memory is set, matching Kind. Signature is set for
// functions described by interface-type metadata.
type ExternType struct {
	Func      *wasm.FuncType
	Global    *wasm.GlobalType
	Table     *wasm.TableType
	Memory    *wasm.MemoryType
	Signature *transcoder.Signature
	Kind      ExternKind
}

func (t ExternType) String() string {
	switch t.Kind {
	case ExternFunc:
		if t.Signature != nil {
			return "func " + t.Signature.String()
		}
		if t.Func != nil {
			return "func " + t.Func.String()
		}
	case ExternGlobal:
		if t.Global != nil {
			return "global " + t.Global.String()
		}
	case ExternTable:
		if t.Table != nil {
			return fmt.Sprintf("table %s %s", t.Table.Limits, t.Table.ElemType)
		}
	case ExternMemory:
		if t.Memory != nil {
			return "memory " + t.Memory.Limits.String()
		}
	}
	return t.Kind.String()
}

// ExportType describes one export of a module.
type ExportType struct {
	Name string
	Type ExternType
}

// ImportType describes one import of a module.
type ImportType struct {
	Module string
	Name   string
	Type   ExternType
}

// matches reports whether an extern of type got can satisfy an import of
// type want.
func (t ExternType) matches(got ExternType) error {
	if t.Kind != got.Kind {
		return fmt.Errorf("expected %s, got %s", t.Kind, got.Kind)
	}
	if !t.complete() || !got.complete() {
		return fmt.Errorf("incomplete %s type", t.Kind)
	}
	switch t.Kind {
	case ExternFunc:
		if !t.Func.Equal(*got.Func) {
			return fmt.Errorf("expected func %s, got %s", t.Func, got.Func)
		}
	case ExternGlobal:
		if *t.Global != *got.Global {
			return fmt.Errorf("expected global %s, got %s", t.Global, got.Global)
		}
	case ExternTable:
		if t.Table.ElemType != got.Table.ElemType {
			return fmt.Errorf("expected %s table, got %s", t.Table.ElemType, got.Table.ElemType)
		}
		if !limitsMatch(t.Table.Limits, got.Table.Limits) {
			return fmt.Errorf("expected table limits %s, got %s", t.Table.Limits, got.Table.Limits)
		}
	case ExternMemory:
		if !limitsMatch(t.Memory.Limits, got.Memory.Limits) {
			return fmt.Errorf("expected memory limits %s, got %s", t.Memory.Limits, got.Memory.Limits)
		}
	}
	return nil
}

func (t ExternType) complete() bool {
	switch t.Kind {
	case ExternFunc:
		return t.Func != nil
	case ExternGlobal:
		return t.Global != nil
	case ExternTable:
		return t.Table != nil
	case ExternMemory:
		return t.Memory != nil
	}
	return false
}

// limitsMatch implements import subtyping: the provided minimum must be at
// least the required one and a required maximum must be honored.
func limitsMatch(want, got wasm.Limits) bool {
	if got.Min < want.Min || got.Shared != want.Shared {
		return false
	}
	if want.Max == nil {
		return true
	}
	return got.Max != nil && *got.Max <= *want.Max
}

func importTypes(m *wasm.Module) []ImportType {
	out := make([]ImportType, len(m.Imports))
	funcs := uint32(0)
	for i, imp := range m.Imports {
		t := ExternType{Kind: kindFromBinary(imp.Desc.Kind)}
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			if ft, ok := m.FuncTypeAt(funcs); ok {
				t.Func = &ft
			}
			funcs++
		case wasm.KindGlobal:
			t.Global = imp.Desc.Global
		case wasm.KindTable:
			t.Table = imp.Desc.Table
		case wasm.KindMemory:
			t.Memory = imp.Desc.Memory
		}
		out[i] = ImportType{Module: imp.Module, Name: imp.Name, Type: t}
	}
	return out
}

func exportTypes(m *wasm.Module) []ExportType {
	out := make([]ExportType, len(m.Exports))
	for i, exp := range m.Exports {
		t := ExternType{Kind: kindFromBinary(exp.Kind)}
		switch exp.Kind {
		case wasm.KindFunc:
			if ft, ok := m.FuncTypeAt(exp.Index); ok {
				t.Func = &ft
			}
		case wasm.KindGlobal:
			if gt, ok := m.GlobalTypeAt(exp.Index); ok {
				t.Global = &gt
			}
		case wasm.KindTable:
			if tt, ok := m.TableTypeAt(exp.Index); ok {
				t.Table = &tt
			}
		case wasm.KindMemory:
			if mt, ok := m.MemoryTypeAt(exp.Index); ok {
				t.Memory = &mt
			}
		}
		out[i] = ExportType{Name: exp.Name, Type: t}
	}
	return out
}
