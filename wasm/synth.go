package wasm

import "github.com/wippyai/wasm-embed/wasm/internal/binary"

// Export names used by synthesized single-export modules.
const (
	SynthMemoryExport = "memory"
	SynthGlobalExport = "global"
	SynthTableExport  = "table"
	SynthFuncExport   = "func"
)

// MemoryModule builds a module that defines and exports one memory.
func MemoryModule(mt MemoryType) []byte {
	wasm := Header()

	sec := binary.AppendU32(nil, 1)
	sec = AppendLimits(sec, mt.Limits)
	wasm = binary.AppendSection(wasm, SectionMemory, sec)

	return appendSingleExport(wasm, SynthMemoryExport, KindMemory)
}

// GlobalModule builds a module that defines and exports one global
// initialized to the raw value bits.
func GlobalModule(gt GlobalType, bits uint64) []byte {
	wasm := Header()

	sec := binary.AppendU32(nil, 1)
	sec = AppendGlobalType(sec, gt)
	sec = append(sec, ConstExpr(gt.ValType, bits)...)
	wasm = binary.AppendSection(wasm, SectionGlobal, sec)

	return appendSingleExport(wasm, SynthGlobalExport, KindGlobal)
}

// TableModule builds a module that defines and exports one table with
// null-initialized elements.
func TableModule(tt TableType) []byte {
	wasm := Header()

	sec := binary.AppendU32(nil, 1)
	sec = AppendTableType(sec, tt)
	wasm = binary.AppendSection(wasm, SectionTable, sec)

	return appendSingleExport(wasm, SynthTableExport, KindTable)
}

// FuncModule builds a module that imports module.name with signature ft
// and re-exports it. Instantiating it yields a guest-side handle on a host
// function.
func FuncModule(module, name string, ft FuncType) []byte {
	wasm := Header()

	sec := binary.AppendU32(nil, 1)
	sec = AppendFuncType(sec, ft)
	wasm = binary.AppendSection(wasm, SectionType, sec)

	sec = binary.AppendU32(nil, 1)
	sec = AppendImport(sec, Import{Module: module, Name: name, Desc: ImportDesc{Kind: KindFunc}})
	wasm = binary.AppendSection(wasm, SectionImport, sec)

	return appendSingleExport(wasm, SynthFuncExport, KindFunc)
}

func appendSingleExport(wasm []byte, name string, kind byte) []byte {
	sec := binary.AppendU32(nil, 1)
	sec = AppendExport(sec, Export{Name: name, Kind: kind, Index: 0})
	return binary.AppendSection(wasm, SectionExport, sec)
}
