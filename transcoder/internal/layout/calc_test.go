package layout

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.bytecodealliance.org/wit"
)

func TestCalculatePrimitives(t *testing.T) {
	c := NewCalculator()

	tests := []struct {
		typ   wit.Type
		name  string
		size  uint32
		align uint32
	}{
		{wit.Bool{}, "bool", 1, 1},
		{wit.U8{}, "u8", 1, 1},
		{wit.S8{}, "s8", 1, 1},
		{wit.U16{}, "u16", 2, 2},
		{wit.S16{}, "s16", 2, 2},
		{wit.U32{}, "u32", 4, 4},
		{wit.S32{}, "s32", 4, 4},
		{wit.U64{}, "u64", 8, 8},
		{wit.S64{}, "s64", 8, 8},
		{wit.F32{}, "f32", 4, 4},
		{wit.F64{}, "f64", 8, 8},
		{wit.Char{}, "char", 4, 4},
		{wit.String{}, "string", 8, 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info := c.Calculate(tc.typ)
			if info.Size != tc.size {
				t.Errorf("size: got %d, want %d", info.Size, tc.size)
			}
			if info.Align != tc.align {
				t.Errorf("align: got %d, want %d", info.Align, tc.align)
			}
		})
	}
}

func TestCalculateCompound(t *testing.T) {
	c := NewCalculator()

	tests := []struct {
		name string
		typ  wit.Type
		want Info
	}{
		{
			name: "empty_record",
			typ:  &wit.TypeDef{Kind: &wit.Record{}},
			want: Info{Size: 0, Align: 1},
		},
		{
			name: "padded_record",
			typ: &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
				{Name: "a", Type: wit.U8{}},
				{Name: "b", Type: wit.U32{}},
				{Name: "c", Type: wit.U16{}},
			}}},
			want: Info{Offsets: []uint32{0, 4, 8}, Size: 12, Align: 4},
		},
		{
			name: "record_with_string",
			typ: &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
				{Name: "flag", Type: wit.Bool{}},
				{Name: "name", Type: wit.String{}},
			}}},
			want: Info{Offsets: []uint32{0, 4}, Size: 12, Align: 4},
		},
		{
			name: "tuple_u8_u64",
			typ:  &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.U8{}, wit.U64{}}}},
			want: Info{Offsets: []uint32{0, 8}, Size: 16, Align: 8},
		},
		{
			name: "list",
			typ:  &wit.TypeDef{Kind: &wit.List{Type: wit.U64{}}},
			want: Info{Size: 8, Align: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Calculate(tt.typ)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("layout mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCalculateCaches(t *testing.T) {
	c := NewCalculator()
	td := &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.U32{}}}}
	c.Calculate(td)
	if _, ok := c.cache[td]; !ok {
		t.Error("type definition layout was not cached")
	}
}
