package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmembed "github.com/wippyai/wasm-embed"
	"github.com/wippyai/wasm-embed/errors"
	"github.com/wippyai/wasm-embed/wasm"
)

// Func is a core function exported by an instance or created by the host.
type Func struct {
	ext *Extern
	fn  api.Function
	typ wasm.FuncType
}

// Type returns the core signature.
func (f *Func) Type() wasm.FuncType { return f.typ }

// Call invokes the function with core arguments and returns its results.
//
// Argument count and kind mismatches are returned as *errors.Error before
// the guest runs. Failures of the guest itself are returned as *Trap.
func (f *Func) Call(ctx context.Context, args ...wasmembed.Val) ([]wasmembed.Val, error) {
	results := make([]wasmembed.Val, len(f.typ.Results))
	if err := f.CallInto(ctx, args, results); err != nil {
		return nil, err
	}
	return results, nil
}

// CallInto invokes the function and writes its results into results, which
// must have exactly as many slots as the function has results. results is
// only written when the call succeeds.
func (f *Func) CallInto(ctx context.Context, args, results []wasmembed.Val) error {
	if f == nil {
		return errors.Contract(errors.PhaseCall, "nil function")
	}
	if err := f.ext.check(); err != nil {
		return err
	}
	if len(args) != len(f.typ.Params) {
		return errors.Arity(errors.PhaseCall, "arguments", len(f.typ.Params), len(args))
	}
	if len(results) != len(f.typ.Results) {
		return errors.Arity(errors.PhaseCall, "results", len(f.typ.Results), len(results))
	}

	stack := make([]uint64, len(args))
	for i, arg := range args {
		bits, err := toCore(f.typ.Params[i], arg, i)
		if err != nil {
			return err
		}
		stack[i] = bits
	}

	out, err := f.invoke(ctx, stack)
	if err != nil {
		return err
	}
	for i, t := range f.typ.Results {
		results[i] = fromCore(t, out[i])
	}
	return nil
}

// invoke runs the raw call and converts runtime failures to traps.
func (f *Func) invoke(ctx context.Context, stack []uint64) ([]uint64, error) {
	store := f.ext.store
	callCtx, done := store.callContext(ctx)
	defer done()

	out, err := f.fn.Call(callCtx, stack...)
	if err != nil {
		trap := trapFromError(err, store.takeHostErr(), TrapUnknown)
		Logger().Debug("call trapped",
			zap.String("func", f.ext.name),
			zap.Stringer("code", trap.Code()),
			zap.String("message", trap.Message()))
		return nil, trap
	}
	return out, nil
}

// toCore converts a core value to its stack representation.
func toCore(t wasm.ValType, v wasmembed.Val, idx int) (uint64, error) {
	path := []string{fmt.Sprintf("[%d]", idx)}
	want := coreKind(t)
	if v.Kind() != want {
		return 0, errors.TypeMismatch(errors.PhaseCall, path, want.String(), v.Kind().String())
	}
	switch want {
	case wasmembed.KindI32, wasmembed.KindF32:
		return uint64(uint32(v.Bits())), nil
	case wasmembed.KindI64, wasmembed.KindF64:
		return v.Bits(), nil
	}
	if v.Ref() != nil {
		return 0, errors.Unsupported(errors.PhaseCall, "non-null host references")
	}
	return 0, nil
}

func fromCore(t wasm.ValType, bits uint64) wasmembed.Val {
	k := coreKind(t)
	switch k {
	case wasmembed.KindI32, wasmembed.KindF32:
		bits = uint64(uint32(bits))
	}
	return wasmembed.ValFromBits(k, bits)
}

func coreKind(t wasm.ValType) wasmembed.ValKind {
	switch t {
	case wasm.ValI64:
		return wasmembed.KindI64
	case wasm.ValF32:
		return wasmembed.KindF32
	case wasm.ValF64:
		return wasmembed.KindF64
	case wasm.ValFuncRef:
		return wasmembed.KindFuncRef
	case wasm.ValExternRef:
		return wasmembed.KindExternRef
	}
	return wasmembed.KindI32
}
