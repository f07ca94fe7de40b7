package engine

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-embed/errors"
	"github.com/wippyai/wasm-embed/wasm"
)

// Extern is an exported or host-created entity: a function, adapter,
// memory, global or table. Externs belong to a store and are only valid
// while their owner is alive.
type Extern struct {
	typ     ExternType
	store   *Store
	owner   *Instance
	fn      *Func
	adapter *Adapter
	mem     api.Memory
	global  api.Global
	// source is where the entity lives in the store's runtime. Instances
	// that import the extern are linked against this name.
	source wasm.ImportName
	name   string
}

// Kind returns the extern kind. Adapters report ExternFunc.
func (e *Extern) Kind() ExternKind { return e.typ.Kind }

// Type returns the extern's type.
func (e *Extern) Type() ExternType { return e.typ }

// Name returns the export name, or the generated name of a host extern.
func (e *Extern) Name() string { return e.name }

// Store returns the store the extern belongs to.
func (e *Extern) Store() *Store { return e.store }

// Func returns the extern as a core function. It returns nil for other
// kinds. Adapters also expose their underlying core function.
func (e *Extern) Func() *Func { return e.fn }

// Adapter returns the interface-typed view of a function export, or nil
// when the export has no interface signature.
func (e *Extern) Adapter() *Adapter { return e.adapter }

// Memory returns the runtime memory of a memory extern, or nil.
func (e *Extern) Memory() api.Memory { return e.mem }

// Global returns the runtime global of a global extern, or nil.
func (e *Extern) Global() api.Global { return e.global }

// check fails once the store or owning instance has been released.
func (e *Extern) check() error {
	if e == nil {
		return errors.Contract(errors.PhaseLifecycle, "nil extern")
	}
	if e.owner != nil && e.owner.released {
		return errors.Released("instance")
	}
	return e.store.check()
}
