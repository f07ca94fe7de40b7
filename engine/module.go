package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-embed/errors"
	"github.com/wippyai/wasm-embed/transcoder"
	"github.com/wippyai/wasm-embed/wasm"
	"github.com/wippyai/wasm-embed/wat"
)

// Module is a validated, compiled WebAssembly module bound to a Store.
type Module struct {
	store    *Store
	compiled wazero.CompiledModule
	meta     *wasm.Module
	plans    map[string]*callPlan
	binary   []byte
	exports  []ExportType
	imports  []ImportType
	// instances counts live instances created from this module.
	instances atomic.Int64
	released  bool
}

// NewModule validates and compiles binary in store. It fails closed: an
// invalid module, or interface metadata that does not fit its exports,
// yields an error and no Module.
func NewModule(ctx context.Context, store *Store, binary []byte) (*Module, error) {
	if err := store.check(); err != nil {
		return nil, err
	}

	meta, err := wasm.ParseModule(binary)
	if err != nil {
		return nil, errors.CompileFailed("decode module", err)
	}
	if opts := store.engine.verify; opts != nil {
		if err := wasm.Verify(meta, *opts); err != nil {
			return nil, errors.CompileFailed("verify module", err)
		}
	}

	compiled, err := store.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, errors.CompileFailed("compile module", err)
	}

	m := &Module{
		store:    store,
		compiled: compiled,
		meta:     meta,
		binary:   append([]byte(nil), binary...),
		exports:  exportTypes(meta),
		imports:  importTypes(meta),
	}
	if err := m.loadInterfaceTypes(); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	store.modules.Add(1)
	Logger().Debug("module compiled",
		zap.Int("imports", len(m.imports)),
		zap.Int("exports", len(m.exports)),
		zap.Int("adapters", len(m.plans)))
	return m, nil
}

// NewModuleFromText converts src to binary and compiles it. Text errors are
// returned as *wat.Error.
func NewModuleFromText(ctx context.Context, store *Store, src string) (*Module, error) {
	if err := store.check(); err != nil {
		return nil, err
	}
	binary, err := wat.Compile(src)
	if err != nil {
		return nil, err
	}
	return NewModule(ctx, store, binary)
}

// ValidateModule reports whether binary would compile in store without
// keeping the result.
func ValidateModule(ctx context.Context, store *Store, binary []byte) error {
	m, err := NewModule(ctx, store, binary)
	if err != nil {
		return err
	}
	return m.Close(ctx)
}

// loadInterfaceTypes parses the interface-types custom section and plans an
// adapter for each described export.
func (m *Module) loadInterfaceTypes() error {
	data, ok := m.meta.CustomSection(transcoder.SectionName)
	if !ok {
		return nil
	}
	if !m.store.engine.interfaceTypes {
		Logger().Debug("interface types disabled, ignoring custom section")
		return nil
	}

	sigs, err := transcoder.ParseSignatures(string(data))
	if err != nil {
		return errors.CompileFailed("interface-types section", err)
	}

	m.plans = make(map[string]*callPlan, len(sigs))
	for i := range sigs {
		sig := &sigs[i]
		idx := m.exportIndex(sig.Name)
		if idx < 0 || m.exports[idx].Type.Kind != ExternFunc || m.exports[idx].Type.Func == nil {
			return errors.CompileFailed(fmt.Sprintf("interface signature for %q has no function export", sig.Name), nil)
		}
		plan, err := planCall(sig, *m.exports[idx].Type.Func)
		if err != nil {
			return errors.CompileFailed(fmt.Sprintf("interface signature for %q", sig.Name), err)
		}
		m.plans[sig.Name] = plan
		m.exports[idx].Type.Signature = sig
	}
	return nil
}

func (m *Module) exportIndex(name string) int {
	for i, e := range m.exports {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// Exports returns the export descriptors in declaration order. The slice
// is borrowed from the module.
func (m *Module) Exports() []ExportType { return m.exports }

// Imports returns the import descriptors in declaration order. The slice
// is borrowed from the module.
func (m *Module) Imports() []ImportType { return m.imports }

// Signature returns the interface signature of an export, if it has one.
func (m *Module) Signature(name string) (*transcoder.Signature, bool) {
	plan, ok := m.plans[name]
	if !ok {
		return nil, false
	}
	return plan.sig, true
}

// Store returns the store the module was compiled in.
func (m *Module) Store() *Store { return m.store }

// Instances returns the number of live instances of the module.
func (m *Module) Instances() int64 { return m.instances.Load() }

// Close releases the compiled code. It fails while instances of the module
// are alive.
func (m *Module) Close(ctx context.Context) error {
	if m == nil {
		return errors.Contract(errors.PhaseLifecycle, "nil module")
	}
	if m.released {
		Logger().Error("module released twice")
		return errors.Released("module")
	}
	if n := m.instances.Load(); n > 0 {
		return errors.LiveChildren("module", n, "instance")
	}
	m.released = true
	m.store.modules.Add(-1)
	return m.compiled.Close(ctx)
}

func (m *Module) check() error {
	if m == nil {
		return errors.Contract(errors.PhaseLifecycle, "nil module")
	}
	if m.released {
		return errors.Released("module")
	}
	return nil
}
