package engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/wippyai/wasm-embed/transcoder"
	"github.com/wippyai/wasm-embed/wasm"
)

func TestPlanCall(t *testing.T) {
	i32, i64, f64 := wasm.ValI32, wasm.ValI64, wasm.ValF64
	params := make([]string, 17)
	for i := range params {
		params[i] = fmt.Sprintf("p%d: u64", i)
	}
	many := "f: func(" + strings.Join(params, ", ") + ");"

	tests := []struct {
		name    string
		sig     string
		core    wasm.FuncType
		spill   bool
		retptr  bool
		memory  bool
		wantErr bool
	}{
		{"scalars", "f: func(a: u32, b: s64) -> f64;",
			wasm.FuncType{Params: []wasm.ValType{i32, i64}, Results: []wasm.ValType{f64}}, false, false, false, false},
		{"string_param", "f: func(s: string);",
			wasm.FuncType{Params: []wasm.ValType{i32, i32}}, false, false, true, false},
		{"string_result_flat", "f: func() -> string;",
			wasm.FuncType{Results: []wasm.ValType{i32, i32}}, false, false, true, false},
		{"string_result_retptr", "f: func() -> string;",
			wasm.FuncType{Results: []wasm.ValType{i32}}, false, true, true, false},
		{"record_flat", "f: func(r: record { x: u8, y: f64 });",
			wasm.FuncType{Params: []wasm.ValType{i32, f64}}, false, false, false, false},
		{"spilled", many,
			wasm.FuncType{Params: []wasm.ValType{i32}}, true, false, true, false},
		{"wrong_params", "f: func(s: string);",
			wasm.FuncType{Params: []wasm.ValType{i32}}, false, false, false, true},
		{"wrong_results", "f: func() -> u64;",
			wasm.FuncType{Results: []wasm.ValType{i32}}, false, false, false, true},
		{"single_result_not_retptr", "f: func() -> u32;",
			wasm.FuncType{Results: []wasm.ValType{i32, i32}}, false, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sigs, err := transcoder.ParseSignatures(tt.sig)
			if err != nil {
				t.Fatalf("ParseSignatures failed: %v", err)
			}
			plan, err := planCall(&sigs[0], tt.core)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", plan)
				}
				return
			}
			if err != nil {
				t.Fatalf("planCall failed: %v", err)
			}
			if plan.spill != tt.spill || plan.retptr != tt.retptr || plan.memory != tt.memory {
				t.Errorf("plan = spill %v retptr %v memory %v, want %v %v %v",
					plan.spill, plan.retptr, plan.memory, tt.spill, tt.retptr, tt.memory)
			}
		})
	}
}
