package engine

import (
	"context"

	wasmembed "github.com/wippyai/wasm-embed"
	"github.com/wippyai/wasm-embed/errors"
)

// DummyImports creates one host extern per import of module, in import
// order. Functions return zero values, globals and tables hold zero values
// and memories have the minimum size the import allows. The result can be
// passed to NewInstance unchanged.
func DummyImports(ctx context.Context, store *Store, module *Module) ([]*Extern, error) {
	if err := module.check(); err != nil {
		return nil, err
	}
	externs := make([]*Extern, 0, len(module.imports))
	for _, imp := range module.imports {
		ext, err := dummyExtern(ctx, store, imp)
		if err != nil {
			return nil, err
		}
		externs = append(externs, ext)
	}
	return externs, nil
}

func dummyExtern(ctx context.Context, store *Store, imp ImportType) (*Extern, error) {
	t := imp.Type
	if !t.complete() {
		return nil, errors.New(errors.PhaseInstantiate, errors.KindInvalidData).
			Path(imp.Module, imp.Name).
			Detail("import has no type").
			Build()
	}
	switch t.Kind {
	case ExternFunc:
		results := t.Func.Results
		return NewFunc(ctx, store, *t.Func, func(context.Context, []wasmembed.Val) ([]wasmembed.Val, error) {
			out := make([]wasmembed.Val, len(results))
			for i, r := range results {
				out[i] = fromCore(r, 0)
			}
			return out, nil
		})
	case ExternGlobal:
		return NewGlobal(ctx, store, *t.Global, fromCore(t.Global.ValType, 0))
	case ExternTable:
		return NewTable(ctx, store, *t.Table)
	case ExternMemory:
		return NewMemory(ctx, store, *t.Memory)
	}
	return nil, errors.Unsupported(errors.PhaseInstantiate, "import kind "+t.Kind.String())
}
