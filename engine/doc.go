// Package engine embeds a WebAssembly runtime behind an explicit object
// lifecycle.
//
// The package wraps wazero. Objects form a strict ownership chain and must
// be released child first:
//
//	Config   - feature flags and strategy, consumed by NewEngineWithConfig
//	Engine   - immutable settings, shared compilation cache
//	Store    - isolated runtime holding modules, instances and host externs
//	Module   - validated, compiled binary with ordered import/export types
//	Instance - a module with imports bound and its start routine run
//	Extern   - one export or host entity: Func, Adapter, memory, global, table
//
// Closing a parent while children are alive fails with an
// errors.KindLiveChildren error. Closing anything twice fails with
// errors.KindReleased.
//
// # Instantiation
//
// Imports are positional. Each extern passed to NewInstance must match the
// kind and type of the corresponding import. The module's import section is
// rewritten so import i resolves to the runtime name of imports[i]; the
// relinked copy is owned by the instance.
//
//	inst, err := engine.NewInstance(ctx, store, mod, nil)
//	if err != nil {
//	    trap := err.(*engine.Trap)
//	    log.Printf("%s: %s", trap.Code(), trap.Message())
//	}
//
// # Calls
//
// A function export is always callable through Func with core values:
//
//	ext, _ := inst.Export("add")
//	results, err := ext.Func().Call(ctx, wasmembed.ValI32(1), wasmembed.ValI32(2))
//
// When the module carries an "interface-types" custom section describing the
// export, Extern.Adapter returns the typed view, which marshals strings,
// lists, records and tuples through linear memory:
//
//	set, _ := inst.Export("set")
//	_, err := set.Adapter().Call(ctx, wasmembed.ValString("Hello World"))
//
// Argument memory is obtained from the instance's allocator export
// (cabi_realloc, canonical_abi_realloc, allocate or alloc) or, with
// Config.SetHostAllocator, by growing memory. Strings are passed as
// (offset, length).
//
// # Errors
//
// Setup failures (configuration, text conversion, compilation) are
// *errors.Error values. Everything that happens once guest code may run is a
// *Trap: start routine failures, guest traps, host function errors and
// marshalling failures. Passing the wrong number or kind of arguments is a
// contract error and is reported before the guest runs.
//
// # Interruption
//
// With Config.SetInterruptible a Store hands out an InterruptHandle that
// cancels running calls, and Config.SetCallTimeout bounds every call.
// Interrupted calls trap with TrapInterrupt and the interrupted instance is
// closed by the runtime. Without either, a call may run forever.
//
// # Thread Safety
//
// Engine is safe for concurrent use. A Store and everything created in it
// must be used from a single goroutine, except InterruptHandle.
package engine
