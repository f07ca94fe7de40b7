package capi

import (
	"github.com/wippyai/wasm-embed/engine"
	"github.com/wippyai/wasm-embed/resource"
	"github.com/wippyai/wasm-embed/vec"
)

type (
	ExternVec     = vec.Vec[Extern]
	ExportTypeVec = vec.Vec[engine.ExportType]
	ImportTypeVec = vec.Vec[engine.ImportType]
)

// ModuleNew validates and compiles binary in s. Invalid modules are
// rejected with a compile error and no handle.
func ModuleNew(s Store, binary *vec.ByteVec) (Module, error) {
	st, err := stores.Get(resource.Handle(s))
	if err != nil {
		return 0, err
	}
	m, err := engine.NewModule(background(), st, binary.Data())
	if err != nil {
		return 0, err
	}
	return Module(insert(modules, m)), nil
}

// ModuleDelete releases m. It fails while instances of m are alive.
func ModuleDelete(m Module) error {
	mod, err := modules.Get(resource.Handle(m))
	if err != nil {
		staleHandle("module delete", err)
		return err
	}
	if err := mod.Close(background()); err != nil {
		return err
	}
	_, err = modules.Remove(resource.Handle(m))
	return err
}

// ModuleExports fills out with the export descriptors of m in declaration
// order.
func ModuleExports(m Module, out *ExportTypeVec) error {
	mod, err := modules.Get(resource.Handle(m))
	if err != nil {
		return err
	}
	return vec.Into(out, mod.Exports())
}

// ModuleImports fills out with the import descriptors of m in declaration
// order.
func ModuleImports(m Module, out *ImportTypeVec) error {
	mod, err := modules.Get(resource.Handle(m))
	if err != nil {
		return err
	}
	return vec.Into(out, mod.Imports())
}

// InstanceNew instantiates m in s with positional imports. On success it
// returns the instance and sets *trap to 0. On failure it returns 0 and,
// when trap is non-nil, stores a new trap the caller must delete.
func InstanceNew(s Store, m Module, imports []Extern, trap *Trap) Instance {
	fail := func(err error) Instance {
		if trap != nil {
			*trap = Trap(insert(traps, engine.AsTrap(err)))
		}
		return 0
	}
	if trap != nil {
		*trap = 0
	}

	st, err := stores.Get(resource.Handle(s))
	if err != nil {
		return fail(err)
	}
	mod, err := modules.Get(resource.Handle(m))
	if err != nil {
		return fail(err)
	}
	exts := make([]*engine.Extern, len(imports))
	for i, h := range imports {
		if exts[i], err = externs.Get(resource.Handle(h)); err != nil {
			return fail(err)
		}
	}

	inst, err := engine.NewInstance(background(), st, mod, exts)
	if err != nil {
		return fail(err)
	}
	return Instance(insert(instances, inst))
}

// InstanceDelete releases i. Extern handles obtained from it stay allocated
// until their vector is deleted but can no longer be used.
func InstanceDelete(i Instance) error {
	inst, err := instances.Get(resource.Handle(i))
	if err != nil {
		staleHandle("instance delete", err)
		return err
	}
	if err := inst.Close(background()); err != nil {
		return err
	}
	_, err = instances.Remove(resource.Handle(i))
	return err
}

// InstanceExports fills out with one new extern handle per export of i, in
// the module's declared order. Release them with ExternVecDelete.
func InstanceExports(i Instance, out *ExternVec) error {
	inst, err := instances.Get(resource.Handle(i))
	if err != nil {
		return err
	}
	handles := make([]Extern, 0, len(inst.Exports()))
	for _, ext := range inst.Exports() {
		handles = append(handles, Extern(insert(externs, ext)))
	}
	return fillExterns(out, handles)
}

// GetExport fills out with a single extern handle for the export called
// name. It returns false when i has no such export.
func GetExport(i Instance, name string, out *ExternVec) bool {
	inst, err := instances.Get(resource.Handle(i))
	if err != nil {
		staleHandle("get export", err)
		return false
	}
	ext, ok := inst.Export(name)
	if !ok {
		return false
	}
	return fillExterns(out, []Extern{Extern(insert(externs, ext))}) == nil
}

// fillExterns moves handles into out, releasing them if out cannot take
// ownership.
func fillExterns(out *ExternVec, handles []Extern) error {
	if err := vec.Into(out, handles); err != nil {
		for _, h := range handles {
			_, _ = externs.Remove(resource.Handle(h))
		}
		return err
	}
	return nil
}

// ExternVecDelete releases every extern handle in v and then v itself.
func ExternVecDelete(v *ExternVec) error {
	if v == nil {
		return nil
	}
	for _, h := range v.Data() {
		if _, err := externs.Remove(resource.Handle(h)); err != nil {
			staleHandle("extern delete", err)
		}
	}
	return v.Delete()
}
