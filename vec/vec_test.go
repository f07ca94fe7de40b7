package vec

import (
	"errors"
	"testing"

	wembederrors "github.com/wippyai/wasm-embed/errors"
)

func TestNew_Copies(t *testing.T) {
	before := Live()
	src := []byte("abc")
	v := New(src)
	src[0] = 'x'

	if got := String(v); got != "abc" {
		t.Errorf("String() = %q, want %q", got, "abc")
	}
	if Live() != before+1 {
		t.Errorf("Live() = %d, want %d", Live(), before+1)
	}
	if err := v.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if Live() != before {
		t.Errorf("Live() after delete = %d, want %d", Live(), before)
	}
}

func TestData_NilIffEmpty(t *testing.T) {
	tests := []struct {
		name string
		v    *ByteVec
		len  int
	}{
		{"empty", NewEmpty[byte](), 0},
		{"uninitialized zero", NewUninitialized[byte](0), 0},
		{"uninitialized", NewUninitialized[byte](8), 8},
		{"from empty string", FromString(""), 0},
		{"from string", FromString("(module)"), 8},
		{"new nil", New[byte](nil), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer tt.v.Delete()
			if tt.v.Len() != tt.len {
				t.Errorf("Len() = %d, want %d", tt.v.Len(), tt.len)
			}
			if (tt.v.Data() == nil) != (tt.len == 0) {
				t.Errorf("Data() nil = %v with Len() = %d", tt.v.Data() == nil, tt.len)
			}
		})
	}
}

func TestDelete_Twice(t *testing.T) {
	v := FromString("x")
	if err := v.Delete(); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	err := v.Delete()
	if !errors.Is(err, wembederrors.ErrReleased) {
		t.Errorf("second Delete = %v, want released error", err)
	}
	if v.Len() != 0 || v.Data() != nil {
		t.Error("deleted vector should be empty")
	}
}

func TestDelete_Unowned(t *testing.T) {
	var v ByteVec
	if err := v.Delete(); !errors.Is(err, wembederrors.ErrContract) {
		t.Errorf("Delete of zero vector = %v, want contract error", err)
	}
}

func TestInto(t *testing.T) {
	before := Live()

	var out ByteVec
	if err := Into(&out, []byte{0, 'a', 's', 'm'}); err != nil {
		t.Fatalf("Into: %v", err)
	}
	if out.Len() != 4 || !out.Owned() {
		t.Errorf("Len() = %d, Owned() = %v", out.Len(), out.Owned())
	}

	if err := Into(&out, []byte{1}); !errors.Is(err, wembederrors.ErrContract) {
		t.Errorf("Into over live vector = %v, want contract error", err)
	}

	if err := out.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// A deleted vector can be reused as an out parameter.
	if err := Into(&out, nil); err != nil {
		t.Fatalf("Into after Delete: %v", err)
	}
	if out.Data() != nil {
		t.Error("empty Into should leave Data() nil")
	}
	out.Delete()

	if err := Into[byte](nil, nil); err == nil {
		t.Error("Into(nil) should fail")
	}
	if Live() != before {
		t.Errorf("Live() = %d, want %d", Live(), before)
	}
}

func TestGenericElements(t *testing.T) {
	type export struct{ name string }
	v := New([]export{{"set"}, {"get"}})
	defer v.Delete()

	if v.Len() != 2 || v.Data()[1].name != "get" {
		t.Errorf("unexpected contents %v", v.Data())
	}
}
