package wasm

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func u32p(v uint32) *uint32 { return &v }

func vecOf(count uint32, entries ...[]byte) []byte {
	out := AppendULEB128(nil, uint64(count))
	for _, e := range entries {
		out = append(out, e...)
	}
	return out
}

// testModule declares:
//
//	type 0: (i32, i32) -> (i32)
//	type 1: () -> ()
//	import env.f: func type 0
//	import env.mem: memory 1
//	func 1 (type 1)
//	export run: func 1, export mem: memory 0
//	custom "interface-types"
func testModule() []byte {
	wasm := Header()
	wasm = AppendSection(wasm, SectionType, vecOf(2,
		AppendFuncType(nil, FuncType{Params: []ValType{ValI32, ValI32}, Results: []ValType{ValI32}}),
		AppendFuncType(nil, FuncType{}),
	))
	wasm = AppendSection(wasm, SectionImport, vecOf(2,
		AppendImport(nil, Import{Module: "env", Name: "f", Desc: ImportDesc{Kind: KindFunc, TypeIdx: 0}}),
		AppendImport(nil, Import{Module: "env", Name: "mem", Desc: ImportDesc{Kind: KindMemory, Memory: &MemoryType{Limits: Limits{Min: 1}}}}),
	))
	wasm = AppendSection(wasm, SectionFunction, vecOf(1, []byte{1}))
	wasm = AppendSection(wasm, SectionExport, vecOf(2,
		AppendExport(nil, Export{Name: "run", Kind: KindFunc, Index: 1}),
		AppendExport(nil, Export{Name: "mem", Kind: KindMemory, Index: 0}),
	))
	wasm = AppendSection(wasm, SectionCode, vecOf(1, []byte{0x02, 0x00, OpEnd}))
	wasm = AppendCustomSection(wasm, "interface-types", []byte("run: func();"))
	return wasm
}

func TestParseModule_Empty(t *testing.T) {
	m, err := ParseModule(Header())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if len(m.Types) != 0 || len(m.Imports) != 0 || len(m.Exports) != 0 {
		t.Errorf("expected empty module, got %+v", m)
	}
}

func TestParseModule_Header(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"bad magic", []byte{0x00, 0x61, 0x73, 0x6e, 0x01, 0x00, 0x00, 0x00}, ErrInvalidMagic},
		{"bad version", []byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00}, ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModule(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseModule() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := ParseModule([]byte{0x00, 0x61}); err == nil {
		t.Error("truncated header should fail")
	}
}

func TestParseModule_Structure(t *testing.T) {
	m, err := ParseModule(testModule())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	wantImports := []Import{
		{Module: "env", Name: "f", Desc: ImportDesc{Kind: KindFunc, TypeIdx: 0}},
		{Module: "env", Name: "mem", Desc: ImportDesc{Kind: KindMemory, Memory: &MemoryType{Limits: Limits{Min: 1}}}},
	}
	if diff := cmp.Diff(wantImports, m.Imports); diff != "" {
		t.Errorf("imports mismatch (-want +got):\n%s", diff)
	}

	wantExports := []Export{
		{Name: "run", Kind: KindFunc, Index: 1},
		{Name: "mem", Kind: KindMemory, Index: 0},
	}
	if diff := cmp.Diff(wantExports, m.Exports); diff != "" {
		t.Errorf("exports mismatch (-want +got):\n%s", diff)
	}

	ft, ok := m.FuncTypeAt(1)
	if !ok || len(ft.Params) != 0 || len(ft.Results) != 0 {
		t.Errorf("FuncTypeAt(1) = %v, %v", ft, ok)
	}
	ft, ok = m.FuncTypeAt(0)
	if !ok || ft.String() != "(i32, i32) -> (i32)" {
		t.Errorf("FuncTypeAt(0) = %v, %v", ft, ok)
	}
	if _, ok := m.FuncTypeAt(2); ok {
		t.Error("FuncTypeAt(2) should be out of range")
	}

	mt, ok := m.MemoryTypeAt(0)
	if !ok || mt.Limits.Min != 1 {
		t.Errorf("MemoryTypeAt(0) = %v, %v", mt, ok)
	}

	data, ok := m.CustomSection("interface-types")
	if !ok || string(data) != "run: func();" {
		t.Errorf("CustomSection = %q, %v", data, ok)
	}
	if len(m.Code) != 1 || m.Code[0].Locals != 0 {
		t.Errorf("Code = %+v", m.Code)
	}
}

func TestParseModule_Errors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		contains string
	}{
		{
			name: "out of order",
			data: AppendSection(AppendSection(Header(), SectionExport, vecOf(0)), SectionType, vecOf(0)),
			contains: "out of order",
		},
		{
			name:     "unknown section",
			data:     AppendSection(Header(), 14, nil),
			contains: "unknown section",
		},
		{
			name:     "truncated section",
			data:     append(Header(), SectionType, 0x05, 0x01),
			contains: "type section",
		},
		{
			name:     "function without code",
			data:     AppendSection(AppendSection(Header(), SectionType, vecOf(1, AppendFuncType(nil, FuncType{}))), SectionFunction, vecOf(1, []byte{0})),
			contains: "inconsistent lengths",
		},
		{
			name:     "trailing bytes",
			data:     AppendSection(Header(), SectionType, []byte{0x00, 0x00}),
			contains: "trailing bytes",
		},
		{
			name:     "bad value type",
			data:     AppendSection(Header(), SectionType, vecOf(1, []byte{FuncTypeByte, 1, 0x55, 0})),
			contains: "invalid value type",
		},
		{
			name:     "body without end",
			data:     AppendSection(AppendSection(AppendSection(Header(), SectionType, vecOf(1, AppendFuncType(nil, FuncType{}))), SectionFunction, vecOf(1, []byte{0})), SectionCode, vecOf(1, []byte{0x01, 0x00})),
			contains: "missing end",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModule(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not contain %q", err, tt.contains)
			}
		})
	}
}

func TestRewriteImports(t *testing.T) {
	original := testModule()
	out, err := RewriteImports(original, []ImportName{
		{Module: "instance-1", Name: "add"},
		{Module: "memory-2", Name: "memory"},
	})
	if err != nil {
		t.Fatalf("RewriteImports: %v", err)
	}

	m, err := ParseModule(out)
	if err != nil {
		t.Fatalf("ParseModule(rewritten): %v", err)
	}
	if m.Imports[0].Module != "instance-1" || m.Imports[0].Name != "add" || m.Imports[0].Desc.Kind != KindFunc {
		t.Errorf("import 0 = %+v", m.Imports[0])
	}
	if m.Imports[1].Module != "memory-2" || m.Imports[1].Desc.Memory.Limits.Min != 1 {
		t.Errorf("import 1 = %+v", m.Imports[1])
	}
	if len(m.Exports) != 2 || len(m.CustomSections) != 1 {
		t.Error("non-import sections should be preserved")
	}
	if !bytes.Equal(original, testModule()) {
		t.Error("input must not be modified")
	}
}

func TestRewriteImports_CountMismatch(t *testing.T) {
	if _, err := RewriteImports(testModule(), []ImportName{{"a", "b"}}); err == nil {
		t.Error("expected count mismatch error")
	}
	if _, err := RewriteImports(Header(), []ImportName{{"a", "b"}}); err == nil {
		t.Error("expected error for module without imports")
	}
	out, err := RewriteImports(Header(), nil)
	if err != nil || !bytes.Equal(out, Header()) {
		t.Errorf("empty rewrite = %x, %v", out, err)
	}
}

func TestSynthModules(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		kind   byte
		export string
	}{
		{"memory", MemoryModule(MemoryType{Limits: Limits{Min: 1, Max: u32p(2)}}), KindMemory, SynthMemoryExport},
		{"global", GlobalModule(GlobalType{ValType: ValI64, Mutable: true}, 42), KindGlobal, SynthGlobalExport},
		{"f64 global", GlobalModule(GlobalType{ValType: ValF64}, F64Bits(1.5)), KindGlobal, SynthGlobalExport},
		{"table", TableModule(TableType{ElemType: ValFuncRef, Limits: Limits{Min: 4}}), KindTable, SynthTableExport},
		{"func", FuncModule("host", "f", FuncType{Params: []ValType{ValI32}, Results: []ValType{ValI64}}), KindFunc, SynthFuncExport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseModule(tt.data)
			if err != nil {
				t.Fatalf("ParseModule: %v", err)
			}
			if len(m.Exports) != 1 || m.Exports[0].Kind != tt.kind || m.Exports[0].Name != tt.export {
				t.Errorf("exports = %+v", m.Exports)
			}
			if err := Verify(m, VerifyOptions{ReferenceTypes: true, MultiValue: true, BulkMemory: true}); err != nil {
				t.Errorf("Verify: %v", err)
			}
		})
	}
}

func TestConstExpr(t *testing.T) {
	tests := []struct {
		name string
		vt   ValType
		bits uint64
		want []byte
	}{
		{"i32 -1", ValI32, 0xffffffff, []byte{OpI32Const, 0x7f, OpEnd}},
		{"i32 64", ValI32, 64, []byte{OpI32Const, 0xc0, 0x00, OpEnd}},
		{"i64 0", ValI64, 0, []byte{OpI64Const, 0x00, OpEnd}},
		{"f32 1.0", ValF32, F32Bits(1.0), []byte{OpF32Const, 0x00, 0x00, 0x80, 0x3f, OpEnd}},
		{"externref", ValExternRef, 0, []byte{OpRefNull, 0x6f, OpEnd}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConstExpr(tt.vt, tt.bits); !bytes.Equal(got, tt.want) {
				t.Errorf("ConstExpr() = %x, want %x", got, tt.want)
			}
		})
	}
}
