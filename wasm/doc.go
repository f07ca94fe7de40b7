// Package wasm provides WebAssembly binary module inspection and rewriting.
//
// ParseModule decodes the module interface: types, imports, functions,
// tables, memories, globals, exports, start, and custom sections. Function
// bodies are framed but not decoded into instructions; execution and full
// validation belong to the runtime.
//
//	m, err := wasm.ParseModule(data)
//	for _, imp := range m.Imports {
//	    fmt.Println(imp.Module, imp.Name, wasm.KindName(imp.Desc.Kind))
//	}
//
// Verify runs additional structural checks (index bounds, limits, duplicate
// exports, start signature, feature gating). The engine runs it when the
// debug verifier is enabled.
//
// RewriteImports renames imports in place so a module can be linked against
// arbitrary instances; MemoryModule, GlobalModule and TableModule synthesize
// one-export modules that back host-created externs.
package wasm
