package wasm

import (
	"errors"
	"fmt"
)

// VerifyOptions selects which feature-dependent checks apply.
type VerifyOptions struct {
	MultiMemory    bool
	MultiValue     bool
	ReferenceTypes bool
	BulkMemory     bool
	Threads        bool
}

// Verify performs structural validation of a decoded module beyond what
// ParseModule checks: index bounds, limits, export uniqueness, start
// signature and feature gating. It does not type-check function bodies.
// All violations are reported, joined.
func Verify(m *Module, opts VerifyOptions) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	for i, ft := range m.Types {
		if len(ft.Results) > 1 && !opts.MultiValue {
			fail("type %d: %d results require multi-value", i, len(ft.Results))
		}
		for _, vt := range append(append([]ValType(nil), ft.Params...), ft.Results...) {
			if vt.IsRef() && !opts.ReferenceTypes {
				fail("type %d: %s requires reference types", i, vt)
			}
		}
	}

	for i, imp := range m.Imports {
		switch imp.Desc.Kind {
		case KindFunc:
			if int(imp.Desc.TypeIdx) >= len(m.Types) {
				fail("import %d (%s.%s): type index %d out of range", i, imp.Module, imp.Name, imp.Desc.TypeIdx)
			}
		case KindTable:
			if err := verifyTable(*imp.Desc.Table, opts); err != nil {
				fail("import %d (%s.%s): %v", i, imp.Module, imp.Name, err)
			}
		case KindMemory:
			if err := verifyMemory(*imp.Desc.Memory, opts); err != nil {
				fail("import %d (%s.%s): %v", i, imp.Module, imp.Name, err)
			}
		}
	}

	for i, typeIdx := range m.Funcs {
		if int(typeIdx) >= len(m.Types) {
			fail("function %d: type index %d out of range", i, typeIdx)
		}
	}

	tables := m.NumImported(KindTable) + len(m.Tables)
	if tables > 1 && !opts.ReferenceTypes {
		fail("%d tables require reference types", tables)
	}
	for i, tt := range m.Tables {
		if err := verifyTable(tt, opts); err != nil {
			fail("table %d: %v", i, err)
		}
	}

	memories := m.NumImported(KindMemory) + len(m.Memories)
	if memories > 1 && !opts.MultiMemory {
		fail("multiple memories are not enabled (%d declared)", memories)
	}
	for i, mt := range m.Memories {
		if err := verifyMemory(mt, opts); err != nil {
			fail("memory %d: %v", i, err)
		}
	}

	importedGlobals := uint32(m.NumImported(KindGlobal))
	for i, g := range m.Globals {
		if g.Type.ValType.IsRef() && !opts.ReferenceTypes {
			fail("global %d: %s requires reference types", i, g.Type.ValType)
		}
		if len(g.Init) > 0 && g.Init[0] == OpGlobalGet {
			// init may only read imported globals
			idx := decodeConstIndex(g.Init)
			if idx >= importedGlobals {
				fail("global %d: init reads non-imported global %d", i, idx)
			}
		}
	}

	funcs := uint32(m.NumImported(KindFunc) + len(m.Funcs))
	globals := importedGlobals + uint32(len(m.Globals))
	seen := make(map[string]bool, len(m.Exports))
	for _, e := range m.Exports {
		if seen[e.Name] {
			fail("duplicate export name %q", e.Name)
		}
		seen[e.Name] = true

		var limit uint32
		switch e.Kind {
		case KindFunc:
			limit = funcs
		case KindTable:
			limit = uint32(tables)
		case KindMemory:
			limit = uint32(memories)
		case KindGlobal:
			limit = globals
		}
		if e.Index >= limit {
			fail("export %q: %s index %d out of range", e.Name, KindName(e.Kind), e.Index)
		}
	}

	if m.Start != nil {
		ft, ok := m.FuncTypeAt(*m.Start)
		switch {
		case !ok:
			fail("start function %d out of range", *m.Start)
		case len(ft.Params) != 0 || len(ft.Results) != 0:
			fail("start function %d must have type () -> (), got %s", *m.Start, ft)
		}
	}

	if m.DataCount != nil {
		if !opts.BulkMemory {
			fail("data count section requires bulk memory")
		}
		if *m.DataCount != m.DataSegments {
			fail("data count %d does not match %d data segments", *m.DataCount, m.DataSegments)
		}
	}
	if m.DataSegments > 0 && memories == 0 {
		fail("data segments without a memory")
	}

	return errors.Join(errs...)
}

func verifyLimits(l Limits, bound uint64, unit string) error {
	if uint64(l.Min) > bound {
		return fmt.Errorf("minimum %d %s exceeds %d", l.Min, unit, bound)
	}
	if l.Max != nil {
		if uint64(*l.Max) > bound {
			return fmt.Errorf("maximum %d %s exceeds %d", *l.Max, unit, bound)
		}
		if *l.Max < l.Min {
			return fmt.Errorf("maximum %d less than minimum %d", *l.Max, l.Min)
		}
	}
	return nil
}

func verifyMemory(mt MemoryType, opts VerifyOptions) error {
	if mt.Limits.Shared {
		if !opts.Threads {
			return errors.New("shared memory requires threads")
		}
		if mt.Limits.Max == nil {
			return errors.New("shared memory must declare a maximum")
		}
	}
	return verifyLimits(mt.Limits, MaxMemoryPages, "pages")
}

func verifyTable(tt TableType, opts VerifyOptions) error {
	if tt.ElemType == ValExternRef && !opts.ReferenceTypes {
		return errors.New("externref table requires reference types")
	}
	if tt.Limits.Shared {
		return errors.New("tables cannot be shared")
	}
	return verifyLimits(tt.Limits, MaxTableSize, "elements")
}

func decodeConstIndex(expr []byte) uint32 {
	var v uint32
	var shift uint
	for _, b := range expr[1:] {
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return v
}
