package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	wasmembed "github.com/wippyai/wasm-embed"
	"github.com/wippyai/wasm-embed/errors"
	"github.com/wippyai/wasm-embed/wasm"
)

// Instance is a module instantiated in a store with its imports resolved.
type Instance struct {
	store  *Store
	module *Module
	mod    api.Module
	// compiled is set when imports forced a relinked copy of the module.
	compiled wazero.CompiledModule
	exports  []*Extern
	byName   map[string]*Extern
	mem      api.Memory
	alloc    wasmembed.Allocator
	// providers are the instances whose exports were imported, one entry
	// per import.
	providers []*Instance
	name      string
	importers int64
	released  bool
}

// NewInstance instantiates module in store. imports are positional and must
// match the module's import list in count, kind and type.
//
// Exactly one result is non-nil. Every error is a *Trap: binding failures
// and start routine failures alike. Nothing created for a failed
// instantiation outlives the call.
func NewInstance(ctx context.Context, store *Store, module *Module, imports []*Extern) (*Instance, error) {
	if err := store.check(); err != nil {
		return nil, instantiationTrap(err)
	}
	if err := module.check(); err != nil {
		return nil, instantiationTrap(err)
	}
	if module.store != store {
		return nil, instantiationTrap(errors.ForeignStore(errors.PhaseInstantiate, "module"))
	}
	names, err := bindImports(store, module, imports)
	if err != nil {
		return nil, instantiationTrap(err)
	}

	compiled := module.compiled
	var owned wazero.CompiledModule
	if len(names) > 0 {
		relinked, err := wasm.RewriteImports(module.binary, names)
		if err != nil {
			return nil, instantiationTrap(errors.Wrap(errors.PhaseInstantiate, errors.KindInvalidData, err, "link imports"))
		}
		owned, err = store.runtime.CompileModule(ctx, relinked)
		if err != nil {
			return nil, instantiationTrap(errors.Wrap(errors.PhaseInstantiate, errors.KindInvalidData, err, "link imports"))
		}
		compiled = owned
	}

	name := store.nextName("instance")
	callCtx, done := store.callContext(ctx)
	mod, err := store.runtime.InstantiateModule(callCtx, compiled,
		wazero.NewModuleConfig().WithName(name).WithStartFunctions())
	done()
	if err != nil {
		if owned != nil {
			_ = owned.Close(ctx)
		}
		trap := trapFromError(err, store.takeHostErr(), TrapInstantiation)
		Logger().Debug("instantiation trapped",
			zap.String("instance", name),
			zap.Stringer("code", trap.Code()),
			zap.String("message", trap.Message()))
		return nil, trap
	}

	inst := &Instance{
		store:    store,
		module:   module,
		mod:      mod,
		compiled: owned,
		mem:      mod.Memory(),
		name:     name,
	}
	inst.resolveExports()
	inst.alloc = inst.allocator()
	for _, ext := range imports {
		if ext.owner != nil {
			ext.owner.importers++
			inst.providers = append(inst.providers, ext.owner)
		}
	}

	module.instances.Add(1)
	store.instances.Add(1)
	Logger().Debug("instance created",
		zap.String("instance", name),
		zap.Int("exports", len(inst.exports)))
	return inst, nil
}

// bindImports checks imports against the module's import list and returns
// the runtime names each import must be linked to.
func bindImports(store *Store, module *Module, imports []*Extern) ([]wasm.ImportName, error) {
	want := module.imports
	if len(imports) != len(want) {
		return nil, errors.Arity(errors.PhaseInstantiate, "imports", len(want), len(imports))
	}
	names := make([]wasm.ImportName, len(imports))
	for i, ext := range imports {
		path := []string{want[i].Module, want[i].Name}
		if ext == nil {
			return nil, errors.New(errors.PhaseInstantiate, errors.KindContract).
				Path(path...).
				Detail("import %d is nil", i).
				Build()
		}
		if err := ext.check(); err != nil {
			return nil, err
		}
		if ext.store != store {
			return nil, errors.ForeignStore(errors.PhaseInstantiate, fmt.Sprintf("import %d", i))
		}
		if err := want[i].Type.matches(ext.typ); err != nil {
			return nil, errors.New(errors.PhaseInstantiate, errors.KindTypeMismatch).
				Path(path...).
				Detail("import %d: %s", i, err).
				Build()
		}
		names[i] = ext.source
	}
	return names, nil
}

// resolveExports builds the export table in declaration order.
func (inst *Instance) resolveExports() {
	exports := inst.module.exports
	inst.exports = make([]*Extern, len(exports))
	inst.byName = make(map[string]*Extern, len(exports))
	for i, exp := range exports {
		ext := &Extern{
			typ:    exp.Type,
			store:  inst.store,
			owner:  inst,
			source: wasm.ImportName{Module: inst.name, Name: exp.Name},
			name:   exp.Name,
		}
		switch exp.Type.Kind {
		case ExternFunc:
			ext.fn = &Func{ext: ext, fn: inst.mod.ExportedFunction(exp.Name), typ: *exp.Type.Func}
			if plan, ok := inst.module.plans[exp.Name]; ok {
				ext.adapter = &Adapter{
					fn:   ext.fn,
					plan: plan,
					post: inst.mod.ExportedFunction(CabiPostPrefix + exp.Name),
				}
			}
		case ExternMemory:
			ext.mem = inst.mod.ExportedMemory(exp.Name)
		case ExternGlobal:
			ext.global = inst.mod.ExportedGlobal(exp.Name)
		}
		inst.exports[i] = ext
		inst.byName[exp.Name] = ext
	}
}

func (inst *Instance) allocator() wasmembed.Allocator {
	if ga := probeAllocator(inst.mod); ga != nil {
		return ga
	}
	if inst.store.engine.hostAllocator && inst.mem != nil {
		return &hostAllocator{mem: inst.mem}
	}
	return nil
}

// Exports returns the instance's exports in the module's declared order.
// The slice and its externs are borrowed from the instance.
func (inst *Instance) Exports() []*Extern { return inst.exports }

// Export looks up an export by name.
func (inst *Instance) Export(name string) (*Extern, bool) {
	ext, ok := inst.byName[name]
	return ext, ok
}

// Module returns the module the instance was created from.
func (inst *Instance) Module() *Module { return inst.module }

// Memory returns the instance's linear memory, or nil if it has none.
func (inst *Instance) Memory() api.Memory { return inst.mem }

// Close releases the instance and its linear memory. Externs obtained from
// it become invalid. It fails while other live instances import any of its
// exports.
func (inst *Instance) Close(ctx context.Context) error {
	if inst == nil {
		return errors.Contract(errors.PhaseLifecycle, "nil instance")
	}
	if inst.released {
		Logger().Error("instance released twice", zap.String("instance", inst.name))
		return errors.Released("instance")
	}
	if inst.importers > 0 {
		return errors.LiveChildren("instance", inst.importers, "importer")
	}
	inst.released = true
	inst.module.instances.Add(-1)
	inst.store.instances.Add(-1)
	for _, p := range inst.providers {
		p.importers--
	}
	inst.providers = nil

	err := inst.mod.Close(ctx)
	if inst.compiled != nil {
		err = multierr.Append(err, inst.compiled.Close(ctx))
	}
	return err
}

func instantiationTrap(err error) *Trap {
	return newTrap(TrapInstantiation, err.Error(), err)
}
