// Package wasmembed is an embedding boundary for a WebAssembly engine.
//
// A host configures and constructs an engine, converts WebAssembly text to
// binary, then loads, instantiates and invokes exported functions. Exports
// that carry interface-type metadata can be called with host strings, lists,
// records and tuples; the adapter lowers them into guest linear memory and
// lifts results back into owned host values.
//
// # Architecture Overview
//
//	wasmembed/          Root package with the value model and Memory/Allocator interfaces
//	├── engine/         Config, Engine, Store, Module, Instance, Extern, Func, Adapter, Trap
//	├── capi/           Handle-based C-shaped surface over engine
//	├── transcoder/     Interface-type lowering and lifting (canonical ABI)
//	├── wasm/           Core binary decoding, verification and rewriting
//	├── wat/            Text format to binary converter
//	├── vec/            Owned byte/element vectors with release accounting
//	├── resource/       Generation-checked handle tables
//	├── errors/         Structured error types
//	├── cmd/wasmembed/  Command line tool
//	└── examples/       Runnable embedding examples
//
// # Quick Start
//
//	cfg := engine.NewConfig()
//	cfg.SetInterfaceTypes(true)
//	eng, err := engine.NewEngineWithConfig(cfg)
//	...
//	store, err := engine.NewStore(ctx, eng)
//	mod, err := engine.NewModule(ctx, store, wasmBytes)
//	inst, err := engine.NewInstance(ctx, store, mod, nil)
//
//	set, _ := inst.Export("set")
//	_, err = set.Adapter().Call(ctx, wasmembed.ValString("Hello World"))
//
//	get, _ := inst.Export("get")
//	res, err := get.Adapter().Call(ctx)
//	fmt.Println(res[0].Str()) // "Hello World"
//
// Objects must be closed child-first: Instance, Module, Store, Engine.
// Closing an owner that still has live children fails.
//
// # Thread Safety
//
// Engine is safe for concurrent use. A Store and everything created from it
// must be used by one goroutine at a time.
package wasmembed
