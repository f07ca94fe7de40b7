// Package ast holds the resolved module produced by the parser. Function
// bodies are already encoded instruction bytes; everything else is encoded
// by the encoder package.
package ast

import "bytes"

type ValType byte

const (
	I32       ValType = 0x7f
	I64       ValType = 0x7e
	F32       ValType = 0x7d
	F64       ValType = 0x7c
	V128      ValType = 0x7b
	FuncRef   ValType = 0x70
	ExternRef ValType = 0x6f
)

// External kinds
const (
	KindFunc   byte = 0x00
	KindTable  byte = 0x01
	KindMemory byte = 0x02
	KindGlobal byte = 0x03
)

type Module struct {
	Types     []FuncType
	Imports   []Import
	Funcs     []uint32 // type index per defined function
	Tables    []Table
	Memories  []Limits
	Globals   []Global
	Exports   []Export
	Start     *uint32
	Elems     []Elem
	Code      []FuncBody
	Data      []Data
	Customs   []Custom
	DataCount bool
}

type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) Equal(o FuncType) bool {
	return bytes.Equal(typeBytes(ft.Params), typeBytes(o.Params)) &&
		bytes.Equal(typeBytes(ft.Results), typeBytes(o.Results))
}

func typeBytes(ts []ValType) []byte {
	b := make([]byte, len(ts))
	for i, t := range ts {
		b[i] = byte(t)
	}
	return b
}

type Limits struct {
	Max    *uint32
	Min    uint32
	Shared bool
}

type Table struct {
	Limits   Limits
	ElemType ValType
}

type GlobalType struct {
	Type    ValType
	Mutable bool
}

type Import struct {
	Module  string
	Name    string
	Table   *Table
	Memory  *Limits
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

type Global struct {
	Init []byte // constant expression including end
	Type GlobalType
}

type Export struct {
	Name  string
	Index uint32
	Kind  byte
}

type ElemMode byte

const (
	ElemActive ElemMode = iota
	ElemPassive
	ElemDeclarative
)

type Elem struct {
	Offset  []byte // active only, including end
	Funcs   []uint32
	Table   uint32
	Mode    ElemMode
	RefType ValType
}

type FuncBody struct {
	Locals []ValType
	Code   []byte // instructions including the final end
}

type Data struct {
	Offset  []byte // active only, including end
	Init    []byte
	Memory  uint32
	Passive bool
}

type Custom struct {
	Name    string
	Payload []byte
}
