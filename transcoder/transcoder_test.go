package transcoder

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.bytecodealliance.org/wit"

	wasmembed "github.com/wippyai/wasm-embed"
	werrors "github.com/wippyai/wasm-embed/errors"
)

func params(types ...wit.Type) []Param {
	out := make([]Param, len(types))
	for i, t := range types {
		out[i] = Param{Name: string(rune('a' + i)), Type: t}
	}
	return out
}

func mustType(t *testing.T, text string) wit.Type {
	t.Helper()
	typ, err := ParseType(text)
	if err != nil {
		t.Fatalf("ParseType(%q): %v", text, err)
	}
	return typ
}

func TestStringRoundTrip(t *testing.T) {
	tests := []string{"", "hello", "héllo wörld", "日本語", "emoji 😀"}

	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			mem := newMockMemory(4096)
			alloc := newMockAllocator(mem)
			allocs := NewAllocationList()
			defer allocs.Release()

			flat, err := NewLowerer(mem, alloc, allocs).LowerFlat(params(wit.String{}), []wasmembed.Val{wasmembed.ValString(s)})
			if err != nil {
				t.Fatalf("LowerFlat failed: %v", err)
			}
			if len(flat) != 2 || flat[1] != uint64(len(s)) {
				t.Fatalf("flat = %v", flat)
			}
			if s == "" {
				if flat[0] != 0 || allocs.Count() != 0 {
					t.Errorf("empty string allocated: flat=%v count=%d", flat, allocs.Count())
				}
			}

			got, err := NewLifter(mem).LiftFlat([]wit.Type{wit.String{}}, flat)
			if err != nil {
				t.Fatalf("LiftFlat failed: %v", err)
			}
			if got[0].Str() != s {
				t.Errorf("got %q, want %q", got[0].Str(), s)
			}
		})
	}
}

func TestLiftedStringIsCopied(t *testing.T) {
	mem := newMockMemory(256)
	copy(mem.data[16:], "guest")

	got, err := NewLifter(mem).LiftFlat([]wit.Type{wit.String{}}, []uint64{16, 5})
	if err != nil {
		t.Fatal(err)
	}
	copy(mem.data[16:], "xxxxx")
	if got[0].Str() != "guest" {
		t.Errorf("lifted string aliases memory: %q", got[0].Str())
	}
}

func TestLowerScalars(t *testing.T) {
	tests := []struct {
		name string
		typ  wit.Type
		val  wasmembed.Val
		want uint64
	}{
		{"bool", wit.Bool{}, wasmembed.ValBool(true), 1},
		{"s8_negative", wit.S8{}, wasmembed.ValS8(-1), 0xffffffff},
		{"u8", wit.U8{}, wasmembed.ValU8(200), 200},
		{"s16_from_i32", wit.S16{}, wasmembed.ValI32(-300), uint64(uint32(0xfffffed4))},
		{"u32_from_i32", wit.U32{}, wasmembed.ValI32(-1), 0xffffffff},
		{"s64", wit.S64{}, wasmembed.ValS64(-2), math.MaxUint64 - 1},
		{"u64_from_i64", wit.U64{}, wasmembed.ValI64(7), 7},
		{"f32", wit.F32{}, wasmembed.ValF32(1.5), uint64(math.Float32bits(1.5))},
		{"f64_nan", wit.F64{}, wasmembed.ValF64(math.Float64frombits(0x7ff0000000000001)), 0x7ff8000000000000},
		{"char", wit.Char{}, wasmembed.ValChar('λ'), uint64('λ')},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flat, err := NewLowerer(newMockMemory(64), nil, nil).LowerFlat(params(tt.typ), []wasmembed.Val{tt.val})
			if err != nil {
				t.Fatalf("LowerFlat failed: %v", err)
			}
			if diff := cmp.Diff([]uint64{tt.want}, flat); diff != "" {
				t.Errorf("flat mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLowerErrors(t *testing.T) {
	tests := []struct {
		name string
		typ  wit.Type
		val  wasmembed.Val
		kind werrors.Kind
	}{
		{"kind_mismatch", wit.String{}, wasmembed.ValI32(1), werrors.KindTypeMismatch},
		{"u8_overflow", wit.U8{}, wasmembed.ValI32(256), werrors.KindOverflow},
		{"s8_underflow", wit.S8{}, wasmembed.ValI32(-129), werrors.KindOverflow},
		{"surrogate_char", wit.Char{}, wasmembed.ValChar(0xD800), werrors.KindInvalidData},
		{"invalid_utf8", wit.String{}, wasmembed.ValString("\xff\xfe"), werrors.KindInvalidUTF8},
		{"f32_from_i32", wit.F32{}, wasmembed.ValI32(1), werrors.KindTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := newMockMemory(4096)
			_, err := NewLowerer(mem, newMockAllocator(mem), nil).LowerFlat(params(tt.typ), []wasmembed.Val{tt.val})
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, &werrors.Error{Phase: werrors.PhaseEncode, Kind: tt.kind}) {
				t.Errorf("error %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestLowerArity(t *testing.T) {
	_, err := NewLowerer(newMockMemory(64), nil, nil).LowerFlat(params(wit.U32{}, wit.U32{}), []wasmembed.Val{wasmembed.ValU32(1)})
	var werr *werrors.Error
	if !errors.As(err, &werr) || werr.Kind != werrors.KindArity {
		t.Fatalf("error = %v, want arity error", err)
	}
}

func TestLowerWithoutAllocator(t *testing.T) {
	_, err := NewLowerer(newMockMemory(64), nil, nil).LowerFlat(params(wit.String{}), []wasmembed.Val{wasmembed.ValString("x")})
	if !errors.Is(err, &werrors.Error{Kind: werrors.KindAllocation}) {
		t.Fatalf("error = %v, want allocation error", err)
	}
}

func TestListRoundTrip(t *testing.T) {
	mem := newMockMemory(4096)
	alloc := newMockAllocator(mem)
	listType := mustType(t, "list<s32>")

	in := wasmembed.ValList(wasmembed.ValS32(1), wasmembed.ValS32(-2), wasmembed.ValS32(3))
	flat, err := NewLowerer(mem, alloc, nil).LowerFlat(params(listType), []wasmembed.Val{in})
	if err != nil {
		t.Fatalf("LowerFlat failed: %v", err)
	}
	if flat[0]%4 != 0 || flat[1] != 3 {
		t.Fatalf("flat = %v", flat)
	}

	out, err := NewLifter(mem).LiftFlat([]wit.Type{listType}, flat)
	if err != nil {
		t.Fatalf("LiftFlat failed: %v", err)
	}
	if got := out[0].String(); got != "[1, -2, 3]" {
		t.Errorf("got %s", got)
	}
}

func TestRecordFlattening(t *testing.T) {
	mem := newMockMemory(4096)
	alloc := newMockAllocator(mem)
	recType := mustType(t, "record { id: u32, name: string, score: f64 }")

	in := wasmembed.ValRecord(wasmembed.ValU32(9), wasmembed.ValString("ann"), wasmembed.ValF64(2.5))
	flat, err := NewLowerer(mem, alloc, nil).LowerFlat(params(recType), []wasmembed.Val{in})
	if err != nil {
		t.Fatalf("LowerFlat failed: %v", err)
	}
	if len(flat) != 4 || flat[0] != 9 || flat[2] != 3 || flat[3] != math.Float64bits(2.5) {
		t.Fatalf("flat = %v", flat)
	}

	out, err := NewLifter(mem).LiftFlat([]wit.Type{recType}, flat)
	if err != nil {
		t.Fatalf("LiftFlat failed: %v", err)
	}
	if got := out[0].String(); got != `{9, "ann", 2.5}` {
		t.Errorf("got %s", got)
	}
}

func TestRecordMemberCount(t *testing.T) {
	recType := mustType(t, "record { a: u8, b: u8 }")
	_, err := NewLowerer(newMockMemory(64), nil, nil).LowerFlat(params(recType), []wasmembed.Val{wasmembed.ValRecord(wasmembed.ValU8(1))})
	if !errors.Is(err, &werrors.Error{Kind: werrors.KindArity}) {
		t.Fatalf("error = %v, want arity error", err)
	}
}

func TestSpillAndLiftFromMemory(t *testing.T) {
	mem := newMockMemory(4096)
	alloc := newMockAllocator(mem)
	types := []wit.Type{wit.U8{}, wit.U64{}, wit.String{}}
	args := []wasmembed.Val{wasmembed.ValU8(7), wasmembed.ValU64(1 << 40), wasmembed.ValString("spilled")}

	ptr, err := NewLowerer(mem, alloc, nil).SpillArgs(params(types...), args)
	if err != nil {
		t.Fatalf("SpillArgs failed: %v", err)
	}
	if ptr%8 != 0 {
		t.Errorf("spill buffer %d not aligned to 8", ptr)
	}

	out, err := NewLifter(mem).LiftFromMemory(types, ptr)
	if err != nil {
		t.Fatalf("LiftFromMemory failed: %v", err)
	}
	want := []string{"7", "1099511627776", `"spilled"`}
	var got []string
	for _, v := range out {
		got = append(got, v.String())
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestLiftErrors(t *testing.T) {
	mem := newMockMemory(256)
	copy(mem.data[32:], []byte{0xc3, 0x28})

	tests := []struct {
		name  string
		types []wit.Type
		flat  []uint64
		kind  werrors.Kind
	}{
		{"string_out_of_bounds", []wit.Type{wit.String{}}, []uint64{250, 16}, werrors.KindOutOfBounds},
		{"invalid_utf8", []wit.Type{wit.String{}}, []uint64{32, 2}, werrors.KindInvalidUTF8},
		{"invalid_char", []wit.Type{wit.Char{}}, []uint64{0x110000}, werrors.KindInvalidData},
		{"too_few_values", []wit.Type{wit.String{}}, []uint64{0}, werrors.KindArity},
		{"too_many_values", []wit.Type{wit.U32{}}, []uint64{1, 2}, werrors.KindArity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLifter(mem).LiftFlat(tt.types, tt.flat)
			if !errors.Is(err, &werrors.Error{Phase: werrors.PhaseDecode, Kind: tt.kind}) {
				t.Errorf("error = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestLiftFromMemoryBounds(t *testing.T) {
	mem := newMockMemory(64)
	types := []wit.Type{wit.String{}}

	if _, err := NewLifter(mem).LiftFromMemory(types, 60); !errors.Is(err, &werrors.Error{Kind: werrors.KindOutOfBounds}) {
		t.Errorf("error = %v, want out of bounds", err)
	}
	if _, err := NewLifter(mem).LiftFromMemory(types, 2); !errors.Is(err, &werrors.Error{Kind: werrors.KindInvalidData}) {
		t.Errorf("error = %v, want misaligned pointer error", err)
	}
}

func TestAllocationListFree(t *testing.T) {
	mem := newMockMemory(4096)
	alloc := newMockAllocator(mem)
	allocs := NewAllocationList()
	defer allocs.Release()

	lw := NewLowerer(mem, alloc, allocs)
	_, err := lw.LowerFlat(params(wit.String{}, wit.String{}), []wasmembed.Val{
		wasmembed.ValString("first"),
		wasmembed.ValI32(0),
	})
	if err == nil {
		t.Fatal("expected type mismatch on second argument")
	}
	if allocs.Count() != 1 || allocs.Bytes() != 5 {
		t.Fatalf("count=%d bytes=%d", allocs.Count(), allocs.Bytes())
	}

	allocs.Free(alloc)
	if len(alloc.freed) != 1 || alloc.freed[0] != 1024 {
		t.Errorf("freed = %v", alloc.freed)
	}
	if allocs.Count() != 0 {
		t.Errorf("list not emptied after Free")
	}
}

func TestFlatTypes(t *testing.T) {
	sigs, err := ParseSignatures("f: func(s: string, r: record { a: u64, b: f32 }) -> tuple<u8, u8>;")
	if err != nil {
		t.Fatal(err)
	}
	if got := len(FlatTypes(sigs[0].ParamTypes())); got != 4 {
		t.Errorf("flat params = %d, want 4", got)
	}
	if got := len(FlatTypes(sigs[0].Results)); got != 2 {
		t.Errorf("flat results = %d, want 2", got)
	}
	size, align := SizeAlign(sigs[0].Results)
	if size != 2 || align != 1 {
		t.Errorf("SizeAlign = %d, %d", size, align)
	}
}
