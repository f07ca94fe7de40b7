package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"go.bytecodealliance.org/wit"

	wasmembed "github.com/wippyai/wasm-embed"
	"github.com/wippyai/wasm-embed/engine"
	"github.com/wippyai/wasm-embed/wasm"
)

const measureModule = `(module
	(import "env" "log" (func $log (param i32)))
	(memory (export "memory") 1)
	(global $heap (mut i32) (i32.const 1024))
	(func (export "cabi_realloc") (param i32 i32 i32 i32) (result i32)
		(local $p i32)
		(local.set $p (global.get $heap))
		(global.set $heap (i32.add (local.get $p) (local.get 3)))
		(local.get $p))
	(func (export "measure") (param i32 i32) (result i32)
		(local.get 1))
	(func (export "add") (param i32 i32) (result i32)
		(i32.add (local.get 0) (local.get 1)))
	(@custom "interface-types" "measure: func(s: string) -> u32;"))`

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, phrase := range []string{"wasmembed", "WebAssembly", "wat2wasm", "inspect", "call", "repl", "--config"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLIWat2Wasm(t *testing.T) {
	in := writeFile(t, "m.wat", `(module (func (export "f")))`)
	out := filepath.Join(filepath.Dir(in), "out.wasm")

	if _, err := executeCommand(rootCmd, "wat2wasm", in, "-o", out); err != nil {
		t.Fatalf("wat2wasm failed: %v", err)
	}
	bin, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if _, err := wasm.ParseModule(bin); err != nil {
		t.Errorf("output does not parse: %v", err)
	}

	bad := writeFile(t, "bad.wat", "(module\n  (func (bogus)))")
	_, err = executeCommand(rootCmd, "wat2wasm", bad, "-o", out)
	if err == nil {
		t.Fatal("expected diagnostic")
	}
	if !strings.Contains(err.Error(), "bad.wat:2:") {
		t.Errorf("diagnostic %q lacks location", err)
	}
}

func TestCLIInspect(t *testing.T) {
	path := writeFile(t, "m.wat", measureModule)
	output, err := executeCommand(rootCmd, "inspect", "--plain", path)
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	for _, phrase := range []string{"Imports (1)", "env.log", "Exports (4)", "memory", "measure", "add"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("inspect output should contain %q:\n%s", phrase, output)
		}
	}
}

func TestCLICall(t *testing.T) {
	path := writeFile(t, "m.wat", measureModule)

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{"adapter", []string{"--raw=false", path, "measure", "Hello World"}, "11", ""},
		{"core", []string{"--raw=false", path, "add", "2", "40"}, "42", ""},
		{"raw", []string{"--raw=true", path, "measure", "0", "7"}, "7", ""},
		{"arity", []string{"--raw=false", path, "add", "2"}, "", "expected 2 arguments"},
		{"missing", []string{"--raw=false", path, "nope"}, "", "no export"},
		{"not_a_func", []string{"--raw=false", path, "memory"}, "", "not a function"},
		{"bad_number", []string{"--raw=false", path, "add", "x", "1"}, "", "argument 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"call", "--dummy-imports"}, tt.args...)
			output, err := executeCommand(rootCmd, args...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("call failed: %v", err)
			}
			if got := strings.TrimSpace(output); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCLICallUnresolvedImport(t *testing.T) {
	path := writeFile(t, "m.wat", measureModule)
	_, err := executeCommand(rootCmd, "call", "--dummy-imports=false", "--raw=false", path, "add", "1", "2")
	var trap *engine.Trap
	if !errors.As(err, &trap) {
		t.Fatalf("expected trap, got %v", err)
	}
	if trap.Code() != engine.TrapInstantiation {
		t.Errorf("code = %s, want instantiation", trap.Code())
	}
}

func TestParseConfig(t *testing.T) {
	fc, err := parseConfig([]byte(`
strategy: baseline
opt_level: speed
call_timeout: 5s
interruptible: true
host_allocator: true
features:
  simd: false
`))
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if fc.CallTimeout != 5*time.Second {
		t.Errorf("call_timeout = %s", fc.CallTimeout)
	}

	cfg := engine.NewConfig()
	if err := fc.apply(cfg); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	e, err := engine.NewEngineWithConfig(cfg)
	if err != nil {
		t.Fatalf("engine from config: %v", err)
	}
	defer e.Close(t.Context())
	if e.Strategy() != engine.StrategyBaseline {
		t.Errorf("strategy = %s", e.Strategy())
	}
	if e.OptLevel() != engine.OptSpeed {
		t.Errorf("opt level = %s", e.OptLevel())
	}

	for _, bad := range []string{"strategy: turbo", "opt_level: max"} {
		fc, err := parseConfig([]byte(bad))
		if err != nil {
			t.Fatalf("parseConfig(%q) failed: %v", bad, err)
		}
		if err := fc.apply(engine.NewConfig()); err == nil {
			t.Errorf("apply(%q) accepted", bad)
		}
	}
	if _, err := parseConfig([]byte("strategy: [")); err == nil {
		t.Error("malformed YAML accepted")
	}
}

func TestParseInterfaceArg(t *testing.T) {
	list := &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}
	tuple := &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.S32{}, wit.String{}}}}

	tests := []struct {
		name    string
		in      string
		typ     wit.Type
		want    string
		wantErr bool
	}{
		{"string", "Hello World", wit.String{}, `"Hello World"`, false},
		{"bool", "true", wit.Bool{}, "true", false},
		{"char", "é", wit.Char{}, `'é'`, false},
		{"char_too_long", "ab", wit.Char{}, "", true},
		{"s8", "-5", wit.S8{}, "-5", false},
		{"s8_overflow", "300", wit.S8{}, "", true},
		{"u32_hex", "0xff", wit.U32{}, "255", false},
		{"u64", "18446744073709551615", wit.U64{}, "18446744073709551615", false},
		{"f64", "1.5", wit.F64{}, "1.5", false},
		{"list", "1, 2,3", list, "[1, 2, 3]", false},
		{"empty_list", "", list, "[]", false},
		{"tuple", "-1,x", tuple, `(-1, "x")`, false},
		{"tuple_arity", "1", tuple, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseInterfaceArg(tt.in, tt.typ)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", v)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := v.String(); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseCoreArg(t *testing.T) {
	var got []wasmembed.Val
	for _, in := range []struct {
		s string
		t wasm.ValType
	}{
		{"-1", wasm.ValI32},
		{"4294967295", wasm.ValI32},
		{"1", wasm.ValI64},
		{"0.5", wasm.ValF32},
		{"2.5", wasm.ValF64},
	} {
		v, err := parseCoreArg(in.s, in.t)
		if err != nil {
			t.Fatalf("parseCoreArg(%q, %s): %v", in.s, in.t, err)
		}
		got = append(got, v)
	}
	want := []string{"-1", "-1", "1", "0.5", "2.5"}
	strs := make([]string, len(got))
	for i, v := range got {
		strs[i] = v.String()
	}
	if diff := cmp.Diff(want, strs); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
	if _, err := parseCoreArg("1", wasm.ValExternRef); err == nil {
		t.Error("externref argument accepted")
	}
}
