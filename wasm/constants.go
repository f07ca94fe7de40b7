package wasm

// Binary header
const (
	Magic   uint32 = 0x6d736100 // "\0asm" little-endian
	Version uint32 = 1
)

// Section IDs
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
)

// External kinds used in import and export descriptors
const (
	KindFunc   byte = 0x00
	KindTable  byte = 0x01
	KindMemory byte = 0x02
	KindGlobal byte = 0x03
)

// Value types
const (
	ValI32       ValType = 0x7f
	ValI64       ValType = 0x7e
	ValF32       ValType = 0x7d
	ValF64       ValType = 0x7c
	ValV128      ValType = 0x7b
	ValFuncRef   ValType = 0x70
	ValExternRef ValType = 0x6f
)

// FuncTypeByte prefixes every function type in the type section.
const FuncTypeByte byte = 0x60

// Opcodes permitted in constant expressions
const (
	OpEnd       byte = 0x0b
	OpGlobalGet byte = 0x23
	OpI32Const  byte = 0x41
	OpI64Const  byte = 0x42
	OpF32Const  byte = 0x43
	OpF64Const  byte = 0x44
	OpRefNull   byte = 0xd0
	OpRefFunc   byte = 0xd2
)

// Limits
const (
	PageSize       = 65536
	MaxMemoryPages = 65536
	MaxTableSize   = 0xffffffff
)

// Limit flags
const (
	limitsHasMax byte = 0x01
	limitsShared byte = 0x02
)

// sectionOrder returns the canonical position of a non-custom section.
// DataCount sits between Element and Code despite its higher ID.
func sectionOrder(id byte) int {
	switch id {
	case SectionDataCount:
		return 10
	case SectionCode:
		return 11
	case SectionData:
		return 12
	default:
		return int(id)
	}
}

// KindName returns the text-format keyword for an external kind.
func KindName(kind byte) string {
	switch kind {
	case KindFunc:
		return "func"
	case KindTable:
		return "table"
	case KindMemory:
		return "memory"
	case KindGlobal:
		return "global"
	}
	return "unknown"
}

// SectionName returns a readable name for a section ID.
func SectionName(id byte) string {
	names := [...]string{"custom", "type", "import", "function", "table", "memory",
		"global", "export", "start", "element", "code", "data", "datacount"}
	if int(id) < len(names) {
		return names[id]
	}
	return "unknown"
}
