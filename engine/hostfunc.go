package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmembed "github.com/wippyai/wasm-embed"
	"github.com/wippyai/wasm-embed/errors"
	"github.com/wippyai/wasm-embed/wasm"
)

// HostFunc implements a function in Go. args hold one core value per
// parameter; the callback returns one per result. A returned error aborts
// the guest and surfaces from the outer call as a Trap with code
// TrapHostError, or as the error itself when it is a *Trap.
type HostFunc func(ctx context.Context, args []wasmembed.Val) ([]wasmembed.Val, error)

const hostFuncExport = "func"

// NewFunc creates a host function extern of type ft in store.
func NewFunc(ctx context.Context, store *Store, ft wasm.FuncType, fn HostFunc) (*Extern, error) {
	if err := store.check(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, errors.Contract(errors.PhaseLifecycle, "nil host function")
	}

	name := store.nextName("host")
	params := append([]wasm.ValType(nil), ft.Params...)
	results := append([]wasm.ValType(nil), ft.Results...)
	ft = wasm.FuncType{Params: params, Results: results}

	goFn := api.GoModuleFunc(func(ctx context.Context, _ api.Module, stack []uint64) {
		args := make([]wasmembed.Val, len(params))
		for i, t := range params {
			args[i] = fromCore(t, stack[i])
		}
		out, err := fn(ctx, args)
		if err == nil {
			err = storeResults(results, out, stack)
		}
		if err != nil {
			store.hostErr = err
			panic(err)
		}
	})

	if _, err := store.runtime.NewHostModuleBuilder(name).
		NewFunctionBuilder().
		WithGoModuleFunction(goFn, valueTypes(params), valueTypes(results)).
		Export(hostFuncExport).
		Instantiate(ctx); err != nil {
		return nil, errors.Wrap(errors.PhaseLifecycle, errors.KindInvalidData, err, "host function")
	}

	// Host modules do not hand out their functions, so direct calls go
	// through a guest module that imports and re-exports it.
	fwd, err := instantiateSynth(ctx, store, "host function", wasm.FuncModule(name, hostFuncExport, ft))
	if err != nil {
		return nil, err
	}

	ext := &Extern{
		typ:    ExternType{Kind: ExternFunc, Func: &ft},
		store:  store,
		source: wasm.ImportName{Module: name, Name: hostFuncExport},
		name:   name,
	}
	ext.fn = &Func{ext: ext, fn: fwd.ExportedFunction(wasm.SynthFuncExport), typ: ft}
	store.hostExterns.Add(1)
	Logger().Debug("host function created", zap.String("name", name), zap.Stringer("type", ft))
	return ext, nil
}

func storeResults(types []wasm.ValType, out []wasmembed.Val, stack []uint64) error {
	if len(out) != len(types) {
		return errors.Arity(errors.PhaseCall, "host results", len(types), len(out))
	}
	for i, t := range types {
		bits, err := toCore(t, out[i], i)
		if err != nil {
			return err
		}
		stack[i] = bits
	}
	return nil
}

// NewMemory creates a host memory extern of type mt in store.
func NewMemory(ctx context.Context, store *Store, mt wasm.MemoryType) (*Extern, error) {
	mod, ext, err := newSynthExtern(ctx, store, "memory", wasm.MemoryModule(mt), wasm.SynthMemoryExport)
	if err != nil {
		return nil, err
	}
	ext.typ = ExternType{Kind: ExternMemory, Memory: &mt}
	ext.mem = mod.ExportedMemory(wasm.SynthMemoryExport)
	return ext, nil
}

// NewGlobal creates a host global extern of type gt initialized to v.
func NewGlobal(ctx context.Context, store *Store, gt wasm.GlobalType, v wasmembed.Val) (*Extern, error) {
	if err := store.check(); err != nil {
		return nil, err
	}
	bits, err := toCore(gt.ValType, v, 0)
	if err != nil {
		return nil, err
	}
	mod, ext, err := newSynthExtern(ctx, store, "global", wasm.GlobalModule(gt, bits), wasm.SynthGlobalExport)
	if err != nil {
		return nil, err
	}
	ext.typ = ExternType{Kind: ExternGlobal, Global: &gt}
	ext.global = mod.ExportedGlobal(wasm.SynthGlobalExport)
	return ext, nil
}

// NewTable creates a host table extern of type tt with null elements.
func NewTable(ctx context.Context, store *Store, tt wasm.TableType) (*Extern, error) {
	_, ext, err := newSynthExtern(ctx, store, "table", wasm.TableModule(tt), wasm.SynthTableExport)
	if err != nil {
		return nil, err
	}
	ext.typ = ExternType{Kind: ExternTable, Table: &tt}
	return ext, nil
}

// newSynthExtern instantiates a one-export module in the store and returns
// an extern naming that export.
func newSynthExtern(ctx context.Context, store *Store, what string, binary []byte, export string) (api.Module, *Extern, error) {
	if err := store.check(); err != nil {
		return nil, nil, err
	}
	mod, err := instantiateSynth(ctx, store, "host "+what, binary)
	if err != nil {
		return nil, nil, err
	}
	store.hostExterns.Add(1)
	return mod, &Extern{
		store:  store,
		source: wasm.ImportName{Module: mod.Name(), Name: export},
		name:   mod.Name(),
	}, nil
}

// instantiateSynth compiles and instantiates a synthesized module under a
// fresh name in the store's runtime.
func instantiateSynth(ctx context.Context, store *Store, what string, binary []byte) (api.Module, error) {
	compiled, err := store.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLifecycle, errors.KindInvalidData, err, what)
	}
	defer compiled.Close(ctx)

	mod, err := store.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(store.nextName("host")))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLifecycle, errors.KindInvalidData, err, what)
	}
	return mod, nil
}
