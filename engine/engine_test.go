package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	wasmembed "github.com/wippyai/wasm-embed"
	werrors "github.com/wippyai/wasm-embed/errors"
	"github.com/wippyai/wasm-embed/wasm"
)

// stringToMemory keeps the last string passed to set and hands it back
// from get.
const stringToMemory = `(module
	(memory (export "memory") 1)
	(global $heap (mut i32) (i32.const 1024))
	(global $ptr (mut i32) (i32.const 0))
	(global $len (mut i32) (i32.const 0))
	(global $posted (export "posted") (mut i32) (i32.const 0))
	(data (i32.const 64) "\ff\fe")
	(data (i32.const 256) "\07\00\00\00\00\02\00\00\02\00\00\00")
	(data (i32.const 512) "hi")
	(func (export "cabi_realloc") (param i32 i32 i32 i32) (result i32)
		(local $p i32)
		(local.set $p
			(i32.and
				(i32.add (global.get $heap) (i32.sub (local.get 2) (i32.const 1)))
				(i32.sub (i32.const 0) (local.get 2))))
		(global.set $heap (i32.add (local.get $p) (local.get 3)))
		(local.get $p))
	(func (export "set") (param i32 i32)
		(global.set $ptr (local.get 0))
		(global.set $len (local.get 1)))
	(func (export "get") (result i32 i32)
		(global.get $ptr)
		(global.get $len))
	(func (export "cabi_post_get") (param i32 i32)
		(global.set $posted (i32.add (global.get $posted) (i32.const 1))))
	(func (export "bad") (result i32 i32)
		(i32.const 65530)
		(i32.const 100))
	(func (export "garbled") (result i32 i32)
		(i32.const 64)
		(i32.const 2))
	(func (export "cabi_post_garbled") (param i32 i32)
		(global.set $posted (i32.add (global.get $posted) (i32.const 1))))
	(func (export "pair") (result i32)
		(i32.const 256))
	(func (export "add") (param i32 i32) (result i32)
		(i32.add (local.get 0) (local.get 1)))
	(@custom "interface-types"
		"set: func(s: string);"
		"get: func() -> string;"
		"bad: func() -> string;"
		"garbled: func() -> string;"
		"pair: func() -> tuple<u32, string>;"
		"add: func(a: u32, b: u32) -> u32;"))`

func newTestStore(t *testing.T, setup ...func(*Config)) *Store {
	t.Helper()
	ctx := context.Background()
	cfg := NewConfig()
	cfg.SetInterfaceTypes(true)
	for _, fn := range setup {
		fn(cfg)
	}
	e, err := NewEngineWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewEngineWithConfig failed: %v", err)
	}
	s, err := NewStore(ctx, e)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(ctx); err != nil {
			t.Errorf("store Close failed: %v", err)
		}
		if err := e.Close(ctx); err != nil {
			t.Errorf("engine Close failed: %v", err)
		}
	})
	return s
}

func newTestModule(t *testing.T, s *Store, src string) *Module {
	t.Helper()
	ctx := context.Background()
	mod, err := NewModuleFromText(ctx, s, src)
	if err != nil {
		t.Fatalf("NewModuleFromText failed: %v", err)
	}
	t.Cleanup(func() {
		if err := mod.Close(ctx); err != nil {
			t.Errorf("module Close failed: %v", err)
		}
	})
	return mod
}

func newTestInstance(t *testing.T, s *Store, mod *Module, imports ...*Extern) *Instance {
	t.Helper()
	ctx := context.Background()
	inst, err := NewInstance(ctx, s, mod, imports)
	if err != nil {
		t.Fatalf("NewInstance failed: %v", err)
	}
	t.Cleanup(func() {
		if err := inst.Close(ctx); err != nil {
			t.Errorf("instance Close failed: %v", err)
		}
	})
	return inst
}

func export(t *testing.T, inst *Instance, name string) *Extern {
	t.Helper()
	ext, ok := inst.Export(name)
	if !ok {
		t.Fatalf("export %q missing", name)
	}
	return ext
}

func asTrap(t *testing.T, err error) *Trap {
	t.Helper()
	var trap *Trap
	if !errors.As(err, &trap) {
		t.Fatalf("error %v (%T) is not a *Trap", err, err)
	}
	return trap
}

func TestStringToMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	inst := newTestInstance(t, s, newTestModule(t, s, stringToMemory))

	set := export(t, inst, "set").Adapter()
	get := export(t, inst, "get").Adapter()
	if set == nil || get == nil {
		t.Fatal("set/get have no adapter")
	}

	for _, in := range []string{"Hello World", "", "héllo, 世界"} {
		if _, err := set.Call(ctx, wasmembed.ValString(in)); err != nil {
			t.Fatalf("set(%q) failed: %v", in, err)
		}
		out, err := get.Call(ctx)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if len(out) != 1 || out[0].Kind() != wasmembed.KindString || out[0].Str() != in {
			t.Errorf("get = %v, want %q", out, in)
		}
	}

	posted := export(t, inst, "posted").Global()
	if got := posted.Get(); got != 3 {
		t.Errorf("cabi_post_get ran %d times, want 3", got)
	}
}

func TestAdapterScalars(t *testing.T) {
	s := newTestStore(t)
	inst := newTestInstance(t, s, newTestModule(t, s, stringToMemory))

	out, err := export(t, inst, "add").Adapter().Call(context.Background(), wasmembed.ValU32(40), wasmembed.ValU32(2))
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if len(out) != 1 || out[0].Kind() != wasmembed.KindU32 || out[0].U32() != 42 {
		t.Errorf("add = %v", out)
	}
}

func TestAdapterReturnPointer(t *testing.T) {
	s := newTestStore(t)
	inst := newTestInstance(t, s, newTestModule(t, s, stringToMemory))

	out, err := export(t, inst, "pair").Adapter().Call(context.Background())
	if err != nil {
		t.Fatalf("pair failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("pair returned %d values", len(out))
	}
	if got := out[0].String(); got != `(7, "hi")` {
		t.Errorf("pair = %s", got)
	}
}

func TestAdapterMarshalTraps(t *testing.T) {
	tests := []struct {
		export string
		kind   werrors.Kind
		posted uint64
	}{
		{"bad", werrors.KindOutOfBounds, 0},
		// garbled has a post-return function, which still runs when the
		// result cannot be lifted.
		{"garbled", werrors.KindInvalidUTF8, 1},
	}
	s := newTestStore(t)
	inst := newTestInstance(t, s, newTestModule(t, s, stringToMemory))
	posted := export(t, inst, "posted").Global()
	for _, tt := range tests {
		t.Run(tt.export, func(t *testing.T) {
			out, err := export(t, inst, tt.export).Adapter().Call(context.Background())
			if err == nil {
				t.Fatalf("expected trap, got %v", out)
			}
			trap := asTrap(t, err)
			if trap.Code() != TrapMarshal {
				t.Errorf("code = %s, want marshal", trap.Code())
			}
			if !errors.Is(err, &werrors.Error{Kind: tt.kind}) {
				t.Errorf("cause %v is not %s", trap.Unwrap(), tt.kind)
			}
			if got := posted.Get(); got != tt.posted {
				t.Errorf("post-return calls = %d, want %d", got, tt.posted)
			}
		})
	}
}

func TestAdapterContractErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	inst := newTestInstance(t, s, newTestModule(t, s, stringToMemory))
	set := export(t, inst, "set").Adapter()

	_, err := set.Call(ctx)
	if !errors.Is(err, &werrors.Error{Kind: werrors.KindArity}) {
		t.Errorf("missing argument: got %v", err)
	}
	_, err = set.Call(ctx, wasmembed.ValI32(1))
	if !errors.Is(err, &werrors.Error{Kind: werrors.KindTypeMismatch}) {
		t.Errorf("wrong kind: got %v", err)
	}
	var trap *Trap
	if errors.As(err, &trap) {
		t.Errorf("contract violation reported as trap %v", trap)
	}
	_, err = set.Call(ctx, wasmembed.ValString("bad \xff utf-8"))
	if trap := asTrap(t, err); trap.Code() != TrapMarshal || !errors.Is(err, &werrors.Error{Kind: werrors.KindInvalidUTF8}) {
		t.Errorf("invalid argument: got %v", err)
	}
}

const noAllocator = `(module
	(memory (export "memory") 1)
	(global $len (mut i32) (i32.const 0))
	(func (export "measure") (param i32 i32) (result i32)
		(local.get 1))
	(@custom "interface-types" "measure: func(s: string) -> u32;"))`

func TestAdapterAllocator(t *testing.T) {
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		s := newTestStore(t)
		inst := newTestInstance(t, s, newTestModule(t, s, noAllocator))
		_, err := export(t, inst, "measure").Adapter().Call(ctx, wasmembed.ValString("abc"))
		if trap := asTrap(t, err); trap.Code() != TrapMarshal || !errors.Is(err, &werrors.Error{Kind: werrors.KindAllocation}) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("host", func(t *testing.T) {
		s := newTestStore(t, func(c *Config) { c.SetHostAllocator(true) })
		inst := newTestInstance(t, s, newTestModule(t, s, noAllocator))
		out, err := export(t, inst, "measure").Adapter().Call(ctx, wasmembed.ValString("abcd"))
		if err != nil {
			t.Fatalf("measure failed: %v", err)
		}
		if out[0].U32() != 4 {
			t.Errorf("measure = %v", out)
		}
		if pages, _ := inst.Memory().Grow(0); pages != 2 {
			t.Errorf("memory pages = %d, want 2", pages)
		}
	})
}

func TestInterfaceTypesDisabled(t *testing.T) {
	s := newTestStore(t, func(c *Config) { c.SetInterfaceTypes(false) })
	mod := newTestModule(t, s, stringToMemory)
	if _, ok := mod.Signature("set"); ok {
		t.Error("signature loaded with interface types disabled")
	}
	inst := newTestInstance(t, s, mod)
	ext := export(t, inst, "set")
	if ext.Adapter() != nil {
		t.Error("adapter exposed with interface types disabled")
	}
	if ext.Func() == nil {
		t.Error("core function missing")
	}
}

func TestModuleInterfaceMismatch(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"param_count", `(module (func (export "f") (param i32))
			(@custom "interface-types" "f: func(s: string);"))`},
		{"missing_export", `(module (func (export "f"))
			(@custom "interface-types" "g: func();"))`},
		{"syntax", `(module (func (export "f"))
			(@custom "interface-types" "f: func(;"))`},
	}
	s := newTestStore(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := NewModuleFromText(context.Background(), s, tt.src)
			if err == nil {
				mod.Close(context.Background())
				t.Fatal("expected error")
			}
			if !errors.Is(err, &werrors.Error{Phase: werrors.PhaseCompile}) {
				t.Errorf("error %v is not a compile error", err)
			}
		})
	}
	if n := s.Modules(); n != 0 {
		t.Errorf("%d modules leaked", n)
	}
}

func TestExportOrder(t *testing.T) {
	s := newTestStore(t)
	mod := newTestModule(t, s, `(module
		(func $f (result i32) (i32.const 1))
		(memory 1)
		(global i64 (i64.const 5))
		(table 2 funcref)
		(export "zeta" (func $f))
		(export "alpha" (memory 0))
		(export "mid" (global 0))
		(export "tbl" (table 0)))`)
	inst := newTestInstance(t, s, mod)

	type entry struct {
		Name string
		Kind ExternKind
	}
	want := []entry{
		{"zeta", ExternFunc},
		{"alpha", ExternMemory},
		{"mid", ExternGlobal},
		{"tbl", ExternTable},
	}
	var fromModule, fromInstance []entry
	for _, e := range mod.Exports() {
		fromModule = append(fromModule, entry{e.Name, e.Type.Kind})
	}
	for _, e := range inst.Exports() {
		fromInstance = append(fromInstance, entry{e.Name(), e.Kind()})
	}
	if diff := cmp.Diff(want, fromModule); diff != "" {
		t.Errorf("module exports (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, fromInstance); diff != "" {
		t.Errorf("instance exports (-want +got):\n%s", diff)
	}

	if got := export(t, inst, "zeta").Type().String(); got != "func () -> (i32)" {
		t.Errorf("zeta type = %q", got)
	}
	if export(t, inst, "alpha").Memory() == nil {
		t.Error("memory export not resolved")
	}
	if g := export(t, inst, "mid").Global(); g == nil || g.Get() != 5 {
		t.Error("global export not resolved")
	}
}

func TestFuncCall(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	inst := newTestInstance(t, s, newTestModule(t, s, stringToMemory))
	add := export(t, inst, "add").Func()

	out, err := add.Call(ctx, wasmembed.ValI32(-5), wasmembed.ValI32(7))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if diff := cmp.Diff([]int32{2}, []int32{out[0].I32()}); diff != "" || out[0].Kind() != wasmembed.KindI32 {
		t.Errorf("add = %v", out)
	}

	results := []wasmembed.Val{wasmembed.ValI32(99)}
	if err := add.CallInto(ctx, []wasmembed.Val{wasmembed.ValI32(1)}, results); !errors.Is(err, &werrors.Error{Kind: werrors.KindArity}) {
		t.Errorf("short args: got %v", err)
	}
	if err := add.CallInto(ctx, []wasmembed.Val{wasmembed.ValI32(1), wasmembed.ValI32(2)}, nil); !errors.Is(err, &werrors.Error{Kind: werrors.KindArity}) {
		t.Errorf("short results: got %v", err)
	}
	if _, err := add.Call(ctx, wasmembed.ValI64(1), wasmembed.ValI32(2)); !errors.Is(err, &werrors.Error{Kind: werrors.KindTypeMismatch}) {
		t.Errorf("wrong kind: got %v", err)
	}
	if results[0].I32() != 99 {
		t.Error("results written on failure")
	}
}

func TestTrapCodes(t *testing.T) {
	s := newTestStore(t)
	inst := newTestInstance(t, s, newTestModule(t, s, `(module
		(memory 1)
		(type $v (func))
		(table 1 funcref)
		(func (export "unreachable") unreachable)
		(func (export "div") (result i32) (i32.div_s (i32.const 1) (i32.const 0)))
		(func (export "overflow") (result i32) (i32.div_s (i32.const -2147483648) (i32.const -1)))
		(func (export "oob") (result i32) (i32.load (i32.const 70000)))
		(func (export "indirect") (call_indirect (type $v) (i32.const 0)))
		(func $rec (export "recurse") (call $rec)))`))

	tests := []struct {
		export string
		code   TrapCode
	}{
		{"unreachable", TrapUnreachable},
		{"div", TrapIntegerDivisionByZero},
		{"overflow", TrapIntegerOverflow},
		{"oob", TrapMemoryOutOfBounds},
		{"recurse", TrapStackOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.export, func(t *testing.T) {
			_, err := export(t, inst, tt.export).Func().Call(context.Background())
			trap := asTrap(t, err)
			if trap.Code() != tt.code {
				t.Errorf("code = %s (%q), want %s", trap.Code(), trap.Message(), tt.code)
			}
			if trap.Message() == "" {
				t.Error("empty trap message")
			}
		})
	}

	t.Run("indirect", func(t *testing.T) {
		_, err := export(t, inst, "indirect").Func().Call(context.Background())
		if trap := asTrap(t, err); trap.Code() == TrapUnknown {
			t.Errorf("unclassified trap %q", trap.Message())
		}
	})
}

func TestStartTrap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mod := newTestModule(t, s, `(module
		(memory 1)
		(func $start unreachable)
		(start $start))`)

	inst, err := NewInstance(ctx, s, mod, nil)
	if inst != nil {
		t.Fatal("instance returned alongside trap")
	}
	if trap := asTrap(t, err); trap.Code() != TrapUnreachable {
		t.Errorf("code = %s, want unreachable", trap.Code())
	}
	if mod.Instances() != 0 || s.Instances() != 0 {
		t.Errorf("instances leaked: module=%d store=%d", mod.Instances(), s.Instances())
	}
}

func TestReleaseOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mod, err := NewModuleFromText(ctx, s, stringToMemory)
	if err != nil {
		t.Fatalf("NewModuleFromText failed: %v", err)
	}
	inst, err := NewInstance(ctx, s, mod, nil)
	if err != nil {
		t.Fatalf("NewInstance failed: %v", err)
	}
	add := export(t, inst, "add").Func()

	if err := mod.Close(ctx); !errors.Is(err, &werrors.Error{Kind: werrors.KindLiveChildren}) {
		t.Errorf("module close with live instance: got %v", err)
	}
	if err := s.Close(ctx); !errors.Is(err, &werrors.Error{Kind: werrors.KindLiveChildren}) {
		t.Errorf("store close with live instance: got %v", err)
	}

	if err := inst.Close(ctx); err != nil {
		t.Fatalf("instance Close failed: %v", err)
	}
	if err := inst.Close(ctx); !errors.Is(err, &werrors.Error{Kind: werrors.KindReleased}) {
		t.Errorf("double instance close: got %v", err)
	}
	if _, err := add.Call(ctx, wasmembed.ValI32(1), wasmembed.ValI32(2)); !errors.Is(err, &werrors.Error{Kind: werrors.KindReleased}) {
		t.Errorf("call after release: got %v", err)
	}

	if err := mod.Close(ctx); err != nil {
		t.Fatalf("module Close failed: %v", err)
	}
	if err := mod.Close(ctx); !errors.Is(err, &werrors.Error{Kind: werrors.KindReleased}) {
		t.Errorf("double module close: got %v", err)
	}
	if _, err := NewInstance(ctx, s, mod, nil); !errors.Is(err, &werrors.Error{Kind: werrors.KindReleased}) {
		t.Errorf("instantiate released module: got %v", err)
	}
}

const importer = `(module
	(import "env" "double" (func $double (param i32) (result i32)))
	(func (export "quad") (param i32) (result i32)
		(call $double (call $double (local.get 0)))))`

func TestHostFunc(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mod := newTestModule(t, s, importer)
	ft := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}

	double, err := NewFunc(ctx, s, ft, func(_ context.Context, args []wasmembed.Val) ([]wasmembed.Val, error) {
		return []wasmembed.Val{wasmembed.ValI32(args[0].I32() * 2)}, nil
	})
	if err != nil {
		t.Fatalf("NewFunc failed: %v", err)
	}
	inst := newTestInstance(t, s, mod, double)
	out, err := export(t, inst, "quad").Func().Call(ctx, wasmembed.ValI32(3))
	if err != nil {
		t.Fatalf("quad failed: %v", err)
	}
	if out[0].I32() != 12 {
		t.Errorf("quad(3) = %v", out[0])
	}

	t.Run("direct", func(t *testing.T) {
		out, err := double.Func().Call(ctx, wasmembed.ValI32(5))
		if err != nil {
			t.Fatalf("direct call failed: %v", err)
		}
		if out[0].I32() != 10 {
			t.Errorf("double(5) = %v", out[0])
		}

		failing, err := NewFunc(ctx, s, ft, func(context.Context, []wasmembed.Val) ([]wasmembed.Val, error) {
			return nil, errors.New("host refused")
		})
		if err != nil {
			t.Fatalf("NewFunc failed: %v", err)
		}
		_, err = failing.Func().Call(ctx, wasmembed.ValI32(1))
		if trap := asTrap(t, err); trap.Code() != TrapHostError {
			t.Errorf("code = %s", trap.Code())
		}
	})

	t.Run("error", func(t *testing.T) {
		failing, err := NewFunc(ctx, s, ft, func(context.Context, []wasmembed.Val) ([]wasmembed.Val, error) {
			return nil, errors.New("host refused")
		})
		if err != nil {
			t.Fatalf("NewFunc failed: %v", err)
		}
		inst := newTestInstance(t, s, mod, failing)
		_, err = export(t, inst, "quad").Func().Call(ctx, wasmembed.ValI32(1))
		trap := asTrap(t, err)
		if trap.Code() != TrapHostError || trap.Message() != "host refused" {
			t.Errorf("trap = %s %q", trap.Code(), trap.Message())
		}
	})

	t.Run("host_trap", func(t *testing.T) {
		trapping, err := NewFunc(ctx, s, ft, func(context.Context, []wasmembed.Val) ([]wasmembed.Val, error) {
			return nil, NewTrap("custom")
		})
		if err != nil {
			t.Fatalf("NewFunc failed: %v", err)
		}
		inst := newTestInstance(t, s, mod, trapping)
		_, err = export(t, inst, "quad").Func().Call(ctx, wasmembed.ValI32(1))
		if trap := asTrap(t, err); trap.Message() != "custom" {
			t.Errorf("trap message = %q", trap.Message())
		}
	})

	t.Run("bad_results", func(t *testing.T) {
		wrong, err := NewFunc(ctx, s, ft, func(context.Context, []wasmembed.Val) ([]wasmembed.Val, error) {
			return []wasmembed.Val{wasmembed.ValF64(1)}, nil
		})
		if err != nil {
			t.Fatalf("NewFunc failed: %v", err)
		}
		inst := newTestInstance(t, s, mod, wrong)
		_, err = export(t, inst, "quad").Func().Call(ctx, wasmembed.ValI32(1))
		if trap := asTrap(t, err); trap.Code() != TrapHostError {
			t.Errorf("code = %s", trap.Code())
		}
	})
}

func TestImportMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mod := newTestModule(t, s, importer)

	wrongType, err := NewFunc(ctx, s, wasm.FuncType{Params: []wasm.ValType{wasm.ValI64}}, func(context.Context, []wasmembed.Val) ([]wasmembed.Val, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("NewFunc failed: %v", err)
	}
	mem, err := NewMemory(ctx, s, wasm.MemoryType{Limits: wasm.Limits{Min: 1}})
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}

	tests := []struct {
		name    string
		imports []*Extern
		kind    werrors.Kind
	}{
		{"none", nil, werrors.KindArity},
		{"too_many", []*Extern{wrongType, mem}, werrors.KindArity},
		{"wrong_type", []*Extern{wrongType}, werrors.KindTypeMismatch},
		{"wrong_kind", []*Extern{mem}, werrors.KindTypeMismatch},
		{"nil", []*Extern{nil}, werrors.KindContract},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := NewInstance(ctx, s, mod, tt.imports)
			if inst != nil {
				t.Fatal("instance created with mismatched imports")
			}
			trap := asTrap(t, err)
			if trap.Code() != TrapInstantiation {
				t.Errorf("code = %s", trap.Code())
			}
			if !errors.Is(err, &werrors.Error{Kind: tt.kind}) {
				t.Errorf("cause %v is not %s", trap.Unwrap(), tt.kind)
			}
		})
	}

	t.Run("foreign_store", func(t *testing.T) {
		other := newTestStore(t)
		foreign, err := NewFunc(ctx, other, wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			func(_ context.Context, args []wasmembed.Val) ([]wasmembed.Val, error) { return args, nil })
		if err != nil {
			t.Fatalf("NewFunc failed: %v", err)
		}
		_, err = NewInstance(ctx, s, mod, []*Extern{foreign})
		if !errors.Is(err, &werrors.Error{Kind: werrors.KindForeignStore}) {
			t.Errorf("got %v", err)
		}
	})
}

func TestLinkInstances(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	provider := newTestInstance(t, s, newTestModule(t, s, `(module
		(memory (export "mem") 1)
		(global (export "base") i32 (i32.const 40))
		(func (export "double") (param i32) (result i32)
			(i32.mul (local.get 0) (i32.const 2))))`))

	consumer := newTestModule(t, s, `(module
		(import "a" "double" (func $double (param i32) (result i32)))
		(import "b" "base" (global $base i32))
		(import "c" "mem" (memory 1))
		(func (export "run") (result i32)
			(i32.store (i32.const 8) (call $double (global.get $base)))
			(i32.load (i32.const 8))))`)

	inst := newTestInstance(t, s, consumer,
		export(t, provider, "double"),
		export(t, provider, "base"),
		export(t, provider, "mem"))
	out, err := export(t, inst, "run").Func().Call(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out[0].I32() != 80 {
		t.Errorf("run = %v", out[0])
	}
	if v, ok := provider.Memory().ReadUint32Le(8); !ok || v != 80 {
		t.Errorf("shared memory = %d, %v", v, ok)
	}

	if err := provider.Close(ctx); !errors.Is(err, &werrors.Error{Kind: werrors.KindLiveChildren}) {
		t.Errorf("provider close with live importer: got %v", err)
	}
	if out, err := export(t, inst, "run").Func().Call(ctx); err != nil || out[0].I32() != 80 {
		t.Errorf("run after rejected close = %v, %v", out, err)
	}
}

func TestDummyImports(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mod := newTestModule(t, s, `(module
		(import "env" "f" (func $f (param i32) (result i64)))
		(import "env" "g" (global $g i32))
		(import "env" "m" (memory 1 2))
		(import "env" "t" (table 1 funcref))
		(func (export "run") (result i64)
			(call $f (global.get $g))))`)

	imports, err := DummyImports(ctx, s, mod)
	if err != nil {
		t.Fatalf("DummyImports failed: %v", err)
	}
	var kinds []ExternKind
	for _, ext := range imports {
		kinds = append(kinds, ext.Kind())
	}
	if diff := cmp.Diff([]ExternKind{ExternFunc, ExternGlobal, ExternMemory, ExternTable}, kinds); diff != "" {
		t.Errorf("kinds (-want +got):\n%s", diff)
	}
	if s.HostExterns() != 4 {
		t.Errorf("host externs = %d", s.HostExterns())
	}
	if out, err := imports[0].Func().Call(ctx, wasmembed.ValI32(7)); err != nil || out[0].I64() != 0 {
		t.Errorf("dummy f(7) = %v, %v", out, err)
	}

	inst := newTestInstance(t, s, mod, imports...)
	out, err := export(t, inst, "run").Func().Call(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out[0].Kind() != wasmembed.KindI64 || out[0].I64() != 0 {
		t.Errorf("run = %v", out)
	}
}

func TestHostGlobal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mod := newTestModule(t, s, `(module
		(import "env" "g" (global $g i32))
		(func (export "get") (result i32) (global.get $g)))`)

	g, err := NewGlobal(ctx, s, wasm.GlobalType{ValType: wasm.ValI32}, wasmembed.ValI32(42))
	if err != nil {
		t.Fatalf("NewGlobal failed: %v", err)
	}
	inst := newTestInstance(t, s, mod, g)
	out, err := export(t, inst, "get").Func().Call(ctx)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if out[0].I32() != 42 {
		t.Errorf("get = %v", out[0])
	}

	if _, err := NewGlobal(ctx, s, wasm.GlobalType{ValType: wasm.ValI32}, wasmembed.ValF32(1)); !errors.Is(err, &werrors.Error{Kind: werrors.KindTypeMismatch}) {
		t.Errorf("mismatched init: got %v", err)
	}
}

const spin = `(module (func (export "spin") (loop $l (br $l))))`

func TestCallTimeout(t *testing.T) {
	s := newTestStore(t, func(c *Config) {
		c.SetInterruptible(true)
		c.SetCallTimeout(50 * time.Millisecond)
	})
	inst := newTestInstance(t, s, newTestModule(t, s, spin))

	_, err := export(t, inst, "spin").Func().Call(context.Background())
	if trap := asTrap(t, err); trap.Code() != TrapInterrupt {
		t.Errorf("code = %s (%q)", trap.Code(), trap.Message())
	}
}

func TestInterruptHandle(t *testing.T) {
	s := newTestStore(t, func(c *Config) { c.SetInterruptible(true) })
	inst := newTestInstance(t, s, newTestModule(t, s, spin))
	h, err := s.InterruptHandle()
	if err != nil {
		t.Fatalf("InterruptHandle failed: %v", err)
	}

	fn := export(t, inst, "spin").Func()
	done := make(chan error, 1)
	go func() {
		_, err := fn.Call(context.Background())
		done <- err
	}()
	deadline := time.After(5 * time.Second)
	for h.Running() == 0 {
		select {
		case <-deadline:
			t.Fatal("call never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	h.Interrupt()

	select {
	case err := <-done:
		if trap := asTrap(t, err); trap.Code() != TrapInterrupt {
			t.Errorf("code = %s", trap.Code())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("interrupt did not stop the call")
	}
}

func TestInterruptHandleDisabled(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.InterruptHandle(); !errors.Is(err, &werrors.Error{Kind: werrors.KindContract}) {
		t.Errorf("got %v", err)
	}
}

func TestWat2Wasm(t *testing.T) {
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer e.Close(context.Background())

	bin, err := Wat2Wasm(e, `(module (func (export "f")))`)
	if err != nil {
		t.Fatalf("Wat2Wasm failed: %v", err)
	}
	if _, err := wasm.ParseModule(bin); err != nil {
		t.Errorf("output does not parse: %v", err)
	}
	if _, err := Wat2Wasm(e, "(module (func"); err == nil {
		t.Error("expected syntax error")
	}
}

func TestValidateModule(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, func(c *Config) { c.SetDebugVerifier(true) })

	bin, err := Wat2Wasm(s.Engine(), stringToMemory)
	if err != nil {
		t.Fatalf("Wat2Wasm failed: %v", err)
	}
	if err := ValidateModule(ctx, s, bin); err != nil {
		t.Errorf("valid module rejected: %v", err)
	}
	if err := ValidateModule(ctx, s, bin[:len(bin)-3]); !errors.Is(err, &werrors.Error{Phase: werrors.PhaseCompile}) {
		t.Errorf("truncated module: got %v", err)
	}
	if s.Modules() != 0 {
		t.Errorf("%d modules leaked", s.Modules())
	}
}
