// Package capi exposes the engine through a C-shaped, handle-based surface.
//
// Every object crossing the boundary is a generation-checked handle into a
// package-level arena instead of a pointer. Constructors hand ownership of a
// new handle to the caller, who releases it with the matching Delete
// exactly once. A second Delete, or any use of a deleted handle, fails with
// resource.ErrStaleHandle rather than touching another object.
//
// Release order follows the engine: instances before modules, modules
// before stores, stores before engines. Deleting a parent while children
// are alive fails and leaves the handle valid.
//
//	e, _ := capi.EngineNew()
//	s, _ := capi.StoreNew(e)
//	ok := capi.Wat2Wasm(e, src, &bin, &msg)
//	m, _ := capi.ModuleNew(s, &bin)
//	var trap capi.Trap
//	inst := capi.InstanceNew(s, m, nil, &trap)
//	...
//	capi.InstanceDelete(inst)
//	capi.ModuleDelete(m)
//	capi.StoreDelete(s)
//	capi.EngineDelete(e)
package capi

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-embed/engine"
	"github.com/wippyai/wasm-embed/resource"
)

type (
	Config   resource.Handle
	Engine   resource.Handle
	Store    resource.Handle
	Module   resource.Handle
	Instance resource.Handle
	Extern   resource.Handle
	Trap     resource.Handle

	// Func is the core-call view of a function extern. It shares the
	// extern's handle and is borrowed from it.
	Func resource.Handle
	// Adapter is the interface-typed view of a function extern. It shares
	// the extern's handle and is borrowed from it.
	Adapter resource.Handle
)

var (
	configs   = resource.NewTable[*engine.Config]("config")
	engines   = resource.NewTable[*engine.Engine]("engine")
	stores    = resource.NewTable[*engine.Store]("store")
	modules   = resource.NewTable[*engine.Module]("module")
	instances = resource.NewTable[*engine.Instance]("instance")
	externs   = resource.NewTable[*engine.Extern]("extern")
	traps     = resource.NewTable[*engine.Trap]("trap")
)

// Live returns the number of handles that have been created and not yet
// deleted, across all object kinds.
func Live() int {
	return configs.Len() + engines.Len() + stores.Len() + modules.Len() +
		instances.Len() + externs.Len() + traps.Len()
}

// Observe subscribes o to handle creation and release events of every kind.
func Observe(o resource.Observer) {
	configs.Subscribe(o)
	engines.Subscribe(o)
	stores.Subscribe(o)
	modules.Subscribe(o)
	instances.Subscribe(o)
	externs.Subscribe(o)
	traps.Subscribe(o)
}

// background is the context for calls that cross the boundary. The surface
// has no cancellation; interruption goes through the engine configuration.
func background() context.Context { return context.Background() }

func staleHandle(op string, err error) {
	engine.Logger().Warn("stale handle", zap.String("op", op), zap.Error(err))
}

func insert[T any](t *resource.Table[T], v T) resource.Handle {
	h, err := t.Insert(v)
	if err != nil {
		engine.Logger().Error("insert handle", zap.String("table", t.Name()), zap.Error(err))
		return 0
	}
	return h
}
