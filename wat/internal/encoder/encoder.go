// Package encoder writes a resolved module in the binary format.
package encoder

import (
	"github.com/wippyai/wasm-embed/wasm"
	"github.com/wippyai/wasm-embed/wat/internal/ast"
)

const elemKindFunc byte = 0x00

// Encode returns the binary encoding of m. Sections are written in canonical
// order and custom sections are appended last.
func Encode(m *ast.Module) []byte {
	out := wasm.Header()

	if len(m.Types) > 0 {
		out = section(out, wasm.SectionType, len(m.Types), func(b []byte, i int) []byte {
			return appendFuncType(b, m.Types[i])
		})
	}
	if len(m.Imports) > 0 {
		out = section(out, wasm.SectionImport, len(m.Imports), func(b []byte, i int) []byte {
			return appendImport(b, m.Imports[i])
		})
	}
	if len(m.Funcs) > 0 {
		out = section(out, wasm.SectionFunction, len(m.Funcs), func(b []byte, i int) []byte {
			return wasm.AppendULEB128(b, uint64(m.Funcs[i]))
		})
	}
	if len(m.Tables) > 0 {
		out = section(out, wasm.SectionTable, len(m.Tables), func(b []byte, i int) []byte {
			return appendTable(b, m.Tables[i])
		})
	}
	if len(m.Memories) > 0 {
		out = section(out, wasm.SectionMemory, len(m.Memories), func(b []byte, i int) []byte {
			return appendLimits(b, m.Memories[i])
		})
	}
	if len(m.Globals) > 0 {
		out = section(out, wasm.SectionGlobal, len(m.Globals), func(b []byte, i int) []byte {
			g := m.Globals[i]
			b = appendGlobalType(b, g.Type)
			return append(b, g.Init...)
		})
	}
	if len(m.Exports) > 0 {
		out = section(out, wasm.SectionExport, len(m.Exports), func(b []byte, i int) []byte {
			e := m.Exports[i]
			b = wasm.AppendName(b, e.Name)
			b = append(b, e.Kind)
			return wasm.AppendULEB128(b, uint64(e.Index))
		})
	}
	if m.Start != nil {
		out = wasm.AppendSection(out, wasm.SectionStart, wasm.AppendULEB128(nil, uint64(*m.Start)))
	}
	if len(m.Elems) > 0 {
		out = section(out, wasm.SectionElement, len(m.Elems), func(b []byte, i int) []byte {
			return appendElem(b, m.Elems[i])
		})
	}
	if needsDataCount(m) {
		out = wasm.AppendSection(out, wasm.SectionDataCount, wasm.AppendULEB128(nil, uint64(len(m.Data))))
	}
	if len(m.Code) > 0 {
		out = section(out, wasm.SectionCode, len(m.Code), func(b []byte, i int) []byte {
			body := appendLocals(nil, m.Code[i].Locals)
			body = append(body, m.Code[i].Code...)
			b = wasm.AppendULEB128(b, uint64(len(body)))
			return append(b, body...)
		})
	}
	if len(m.Data) > 0 {
		out = section(out, wasm.SectionData, len(m.Data), func(b []byte, i int) []byte {
			return appendData(b, m.Data[i])
		})
	}
	for _, c := range m.Customs {
		out = wasm.AppendCustomSection(out, c.Name, c.Payload)
	}
	return out
}

// section appends a vector section whose entries are produced by entry.
func section(out []byte, id byte, n int, entry func([]byte, int) []byte) []byte {
	payload := wasm.AppendULEB128(nil, uint64(n))
	for i := 0; i < n; i++ {
		payload = entry(payload, i)
	}
	return wasm.AppendSection(out, id, payload)
}

// needsDataCount reports whether the code refers to data segments by index.
// Passive segments can only be used that way.
func needsDataCount(m *ast.Module) bool {
	if m.DataCount {
		return true
	}
	for _, d := range m.Data {
		if d.Passive {
			return len(m.Code) > 0
		}
	}
	return false
}

func appendValTypes(b []byte, ts []ast.ValType) []byte {
	b = wasm.AppendULEB128(b, uint64(len(ts)))
	for _, t := range ts {
		b = append(b, byte(t))
	}
	return b
}

func appendFuncType(b []byte, ft ast.FuncType) []byte {
	b = append(b, wasm.FuncTypeByte)
	b = appendValTypes(b, ft.Params)
	return appendValTypes(b, ft.Results)
}

func appendLimits(b []byte, l ast.Limits) []byte {
	var flags byte
	if l.Max != nil {
		flags |= 0x01
	}
	if l.Shared {
		flags |= 0x02
	}
	b = append(b, flags)
	b = wasm.AppendULEB128(b, uint64(l.Min))
	if l.Max != nil {
		b = wasm.AppendULEB128(b, uint64(*l.Max))
	}
	return b
}

func appendTable(b []byte, t ast.Table) []byte {
	b = append(b, byte(t.ElemType))
	return appendLimits(b, t.Limits)
}

func appendGlobalType(b []byte, gt ast.GlobalType) []byte {
	b = append(b, byte(gt.Type))
	if gt.Mutable {
		return append(b, 0x01)
	}
	return append(b, 0x00)
}

func appendImport(b []byte, imp ast.Import) []byte {
	b = wasm.AppendName(b, imp.Module)
	b = wasm.AppendName(b, imp.Name)
	b = append(b, imp.Kind)
	switch imp.Kind {
	case ast.KindFunc:
		b = wasm.AppendULEB128(b, uint64(imp.TypeIdx))
	case ast.KindTable:
		b = appendTable(b, *imp.Table)
	case ast.KindMemory:
		b = appendLimits(b, *imp.Memory)
	case ast.KindGlobal:
		b = appendGlobalType(b, *imp.Global)
	}
	return b
}

// appendLocals run-length encodes local declarations.
func appendLocals(b []byte, locals []ast.ValType) []byte {
	type run struct {
		n uint32
		t ast.ValType
	}
	var runs []run
	for _, t := range locals {
		if len(runs) > 0 && runs[len(runs)-1].t == t {
			runs[len(runs)-1].n++
			continue
		}
		runs = append(runs, run{n: 1, t: t})
	}
	b = wasm.AppendULEB128(b, uint64(len(runs)))
	for _, r := range runs {
		b = wasm.AppendULEB128(b, uint64(r.n))
		b = append(b, byte(r.t))
	}
	return b
}

func appendFuncIndices(b []byte, funcs []uint32) []byte {
	b = wasm.AppendULEB128(b, uint64(len(funcs)))
	for _, f := range funcs {
		b = wasm.AppendULEB128(b, uint64(f))
	}
	return b
}

// appendElem uses the funcref index forms: flags 0 to 3, or 4 to 7 when the
// segment holds externref and must be written as expressions.
func appendElem(b []byte, e ast.Elem) []byte {
	if e.RefType == ast.ExternRef {
		return appendElemExprs(b, e)
	}
	switch e.Mode {
	case ast.ElemPassive:
		b = append(b, 0x01, elemKindFunc)
	case ast.ElemDeclarative:
		b = append(b, 0x03, elemKindFunc)
	default:
		if e.Table == 0 {
			b = append(b, 0x00)
			b = append(b, e.Offset...)
		} else {
			b = append(b, 0x02)
			b = wasm.AppendULEB128(b, uint64(e.Table))
			b = append(b, e.Offset...)
			b = append(b, elemKindFunc)
		}
	}
	return appendFuncIndices(b, e.Funcs)
}

func appendElemExprs(b []byte, e ast.Elem) []byte {
	switch e.Mode {
	case ast.ElemPassive:
		b = append(b, 0x05, byte(e.RefType))
	case ast.ElemDeclarative:
		b = append(b, 0x07, byte(e.RefType))
	default:
		b = append(b, 0x06)
		b = wasm.AppendULEB128(b, uint64(e.Table))
		b = append(b, e.Offset...)
		b = append(b, byte(e.RefType))
	}
	b = wasm.AppendULEB128(b, uint64(len(e.Funcs)))
	for _, f := range e.Funcs {
		b = append(b, wasm.OpRefFunc)
		b = wasm.AppendULEB128(b, uint64(f))
		b = append(b, wasm.OpEnd)
	}
	return b
}

func appendData(b []byte, d ast.Data) []byte {
	switch {
	case d.Passive:
		b = append(b, 0x01)
	case d.Memory == 0:
		b = append(b, 0x00)
		b = append(b, d.Offset...)
	default:
		b = append(b, 0x02)
		b = wasm.AppendULEB128(b, uint64(d.Memory))
		b = append(b, d.Offset...)
	}
	b = wasm.AppendULEB128(b, uint64(len(d.Init)))
	return append(b, d.Init...)
}
