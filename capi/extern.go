package capi

import (
	wasmembed "github.com/wippyai/wasm-embed"
	"github.com/wippyai/wasm-embed/engine"
	"github.com/wippyai/wasm-embed/errors"
	"github.com/wippyai/wasm-embed/resource"
	"github.com/wippyai/wasm-embed/vec"
)

// ValVec holds adapter results.
type ValVec = vec.Vec[wasmembed.Val]

// ExternKind returns the kind of x.
func ExternKind(x Extern) (engine.ExternKind, error) {
	ext, err := externs.Get(resource.Handle(x))
	if err != nil {
		return 0, err
	}
	return ext.Kind(), nil
}

// ExternAsFunc returns the core function view of x, or 0 when x is not a
// function. The view is borrowed from x.
func ExternAsFunc(x Extern) Func {
	ext, err := externs.Get(resource.Handle(x))
	if err != nil || ext.Func() == nil {
		return 0
	}
	return Func(x)
}

// ExternAsAdapter returns the interface-typed view of x, or 0 when x has no
// interface signature. The view is borrowed from x.
func ExternAsAdapter(x Extern) Adapter {
	ext, err := externs.Get(resource.Handle(x))
	if err != nil || ext.Adapter() == nil {
		return 0
	}
	return Adapter(x)
}

// FuncParamArity returns the number of core parameters of f.
func FuncParamArity(f Func) int {
	fn := lookupFunc(f)
	if fn == nil {
		return 0
	}
	return len(fn.Type().Params)
}

// FuncResultArity returns the number of core results of f. FuncCall needs
// a results slice of exactly this length.
func FuncResultArity(f Func) int {
	fn := lookupFunc(f)
	if fn == nil {
		return 0
	}
	return len(fn.Type().Results)
}

func lookupFunc(f Func) *engine.Func {
	ext, err := externs.Get(resource.Handle(f))
	if err != nil {
		return nil
	}
	return ext.Func()
}

// FuncCall calls f with core arguments and writes its results into results.
// It returns 0 on success. On failure it returns a trap the caller must
// delete and leaves results untouched. Contract violations such as a wrong
// argument count are reported as traps too.
func FuncCall(f Func, args []wasmembed.Val, results []wasmembed.Val) Trap {
	fn := lookupFunc(f)
	if fn == nil {
		return newTrapHandle(errors.Contract(errors.PhaseCall, "%s is not a function", resource.Handle(f)))
	}
	if err := fn.CallInto(background(), args, results); err != nil {
		return newTrapHandle(err)
	}
	return 0
}

// AdapterCall calls a with host values and fills results with the lifted
// results. It returns 0 on success, or a trap the caller must delete.
func AdapterCall(a Adapter, args []wasmembed.Val, results *ValVec) Trap {
	ext, err := externs.Get(resource.Handle(a))
	if err != nil {
		return newTrapHandle(err)
	}
	adapter := ext.Adapter()
	if adapter == nil {
		return newTrapHandle(errors.Contract(errors.PhaseCall, "export %q has no interface signature", ext.Name()))
	}
	out, err := adapter.Call(background(), args...)
	if err != nil {
		return newTrapHandle(err)
	}
	if err := vec.Into(results, out); err != nil {
		return newTrapHandle(err)
	}
	return 0
}

// TrapNew creates a trap carrying message in store s.
func TrapNew(s Store, message *vec.ByteVec) (Trap, error) {
	if _, err := stores.Get(resource.Handle(s)); err != nil {
		return 0, err
	}
	return Trap(insert(traps, engine.NewTrap(vec.String(message)))), nil
}

// TrapMessage fills out with the UTF-8 message of t.
func TrapMessage(t Trap, out *vec.ByteVec) error {
	trap, err := traps.Get(resource.Handle(t))
	if err != nil {
		return err
	}
	return vec.Into(out, []byte(trap.Message()))
}

// TrapCode returns the classification of t.
func TrapCode(t Trap) (engine.TrapCode, error) {
	trap, err := traps.Get(resource.Handle(t))
	if err != nil {
		return 0, err
	}
	return trap.Code(), nil
}

// TrapDelete releases t.
func TrapDelete(t Trap) error {
	_, err := traps.Remove(resource.Handle(t))
	if err != nil {
		staleHandle("trap delete", err)
	}
	return err
}

func newTrapHandle(err error) Trap {
	return Trap(insert(traps, engine.AsTrap(err)))
}
