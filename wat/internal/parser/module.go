package parser

import (
	"github.com/wippyai/wasm-embed/wat/internal/ast"
	"github.com/wippyai/wasm-embed/wat/internal/sexpr"
	"github.com/wippyai/wasm-embed/wat/internal/token"
)

const (
	maxMemoryPages = 65536
	maxTableSize   = 1<<32 - 1
	pageSize       = 65536
)

// define is the second pass: it builds the definition for one field.
func (p *Parser) define(f *sexpr.Node) error {
	if f.Annotation != "" {
		return p.annotation(f)
	}
	switch f.Head() {
	case "import":
		return p.importField(f)
	case "func":
		return p.funcField(f)
	case "table":
		return p.tableField(f)
	case "memory":
		return p.memoryField(f)
	case "global":
		return p.globalField(f)
	case "export":
		return p.exportField(f)
	case "start":
		return p.startField(f)
	case "elem":
		return p.elemField(f)
	case "data":
		return p.dataField(f)
	}
	return nil
}

// annotation handles (@custom "name" (placement)? "bytes"*). Other
// annotations are ignored.
func (p *Parser) annotation(f *sexpr.Node) error {
	if f.Annotation != "custom" {
		return nil
	}
	c := newCursor(f, 0)
	name, err := c.expectString()
	if err != nil {
		return err
	}
	// placement hints such as (after func) do not affect the encoding
	if n := c.peek(); n != nil && n.List && (n.Is("before") || n.Is("after")) {
		c.next()
	}
	var payload []byte
	for !c.done() {
		s, err := c.expectString()
		if err != nil {
			return err
		}
		payload = append(payload, s...)
	}
	p.mod.Customs = append(p.mod.Customs, ast.Custom{Name: name, Payload: payload})
	return nil
}

func (p *Parser) typeField(f *sexpr.Node) (ast.FuncType, error) {
	c := newCursor(f, 1)
	c.optID()
	fn := c.next()
	if fn == nil || !fn.Is("func") {
		return ast.FuncType{}, token.Errorf(c.posOf(fn), "expected (func ...) in type definition, got %s", describe(fn))
	}
	if err := c.expectEnd(); err != nil {
		return ast.FuncType{}, err
	}
	fc := newCursor(fn, 1)
	ft, _, err := p.signature(fc)
	if err != nil {
		return ast.FuncType{}, err
	}
	return ft, fc.expectEnd()
}

func importNames(n *sexpr.Node) (string, string, error) {
	c := newCursor(n, 1)
	mod, err := c.expectString()
	if err != nil {
		return "", "", err
	}
	name, err := c.expectString()
	if err != nil {
		return "", "", err
	}
	return mod, name, c.expectEnd()
}

func (p *Parser) importField(f *sexpr.Node) error {
	c := newCursor(f, 1)
	mod, err := c.expectString()
	if err != nil {
		return err
	}
	name, err := c.expectString()
	if err != nil {
		return err
	}
	desc := c.next()
	if err := c.expectEnd(); err != nil {
		return err
	}

	dc := newCursor(desc, 1)
	dc.optID()
	sp, _ := descSpace(desc.Head())
	p.take(sp)

	imp, err := p.importDesc(desc.Head(), dc)
	if err != nil {
		return err
	}
	imp.Module, imp.Name = mod, name
	p.mod.Imports = append(p.mod.Imports, imp)
	return dc.expectEnd()
}

// importDesc parses the type part of an import of the given kind.
func (p *Parser) importDesc(kind string, c *cursor) (ast.Import, error) {
	var imp ast.Import
	switch kind {
	case "func":
		idx, _, _, err := p.typeUse(c)
		if err != nil {
			return imp, err
		}
		imp.Kind, imp.TypeIdx = ast.KindFunc, idx
	case "table":
		tt, err := p.tableType(c)
		if err != nil {
			return imp, err
		}
		imp.Kind, imp.Table = ast.KindTable, &tt
	case "memory":
		l, err := p.memoryType(c)
		if err != nil {
			return imp, err
		}
		imp.Kind, imp.Memory = ast.KindMemory, &l
	case "global":
		gt, err := p.globalType(c)
		if err != nil {
			return imp, err
		}
		imp.Kind, imp.Global = ast.KindGlobal, &gt
	}
	return imp, nil
}

// inlineExports consumes (export "name")* abbreviations.
func (p *Parser) inlineExports(c *cursor, idx uint32, kind byte) error {
	for n := c.peek(); n != nil && n.Is("export"); n = c.peek() {
		c.next()
		ec := newCursor(n, 1)
		name, err := ec.expectString()
		if err != nil {
			return err
		}
		if err := ec.expectEnd(); err != nil {
			return err
		}
		p.mod.Exports = append(p.mod.Exports, ast.Export{Name: name, Index: idx, Kind: kind})
	}
	return nil
}

// inlineImport consumes an (import "m" "n") abbreviation if present.
func (p *Parser) inlineImport(c *cursor, kind string) (bool, error) {
	n := c.peek()
	if n == nil || !n.Is("import") {
		return false, nil
	}
	c.next()
	mod, name, err := importNames(n)
	if err != nil {
		return true, err
	}
	imp, err := p.importDesc(kind, c)
	if err != nil {
		return true, err
	}
	imp.Module, imp.Name = mod, name
	p.mod.Imports = append(p.mod.Imports, imp)
	return true, c.expectEnd()
}

func (p *Parser) funcField(f *sexpr.Node) error {
	c := newCursor(f, 1)
	c.optID()
	idx := p.take(spaceFunc)
	if err := p.inlineExports(c, idx, ast.KindFunc); err != nil {
		return err
	}
	if imported, err := p.inlineImport(c, "func"); imported || err != nil {
		return err
	}

	typeIdx, _, names, err := p.typeUse(c)
	if err != nil {
		return err
	}

	b := newFuncBuilder(p)
	for _, name := range names {
		if err := b.addLocal(name, c.list); err != nil {
			return err
		}
	}

	var locals []ast.ValType
	for n := c.peek(); n != nil && n.Is("local"); n = c.peek() {
		c.next()
		lc := newCursor(n, 1)
		if id := lc.optID(); id != "" {
			vt, err := p.valType(lc)
			if err != nil {
				return err
			}
			if err := b.addLocal(id, n); err != nil {
				return err
			}
			locals = append(locals, vt)
			if err := lc.expectEnd(); err != nil {
				return err
			}
			continue
		}
		for !lc.done() {
			vt, err := p.valType(lc)
			if err != nil {
				return err
			}
			if err := b.addLocal("", n); err != nil {
				return err
			}
			locals = append(locals, vt)
		}
	}

	if err := b.instrs(c); err != nil {
		return err
	}
	b.code = append(b.code, opEnd)

	p.mod.Funcs = append(p.mod.Funcs, typeIdx)
	p.mod.Code = append(p.mod.Code, ast.FuncBody{Locals: locals, Code: b.code})
	return nil
}

func (p *Parser) tableField(f *sexpr.Node) error {
	c := newCursor(f, 1)
	c.optID()
	idx := p.take(spaceTable)
	if err := p.inlineExports(c, idx, ast.KindTable); err != nil {
		return err
	}
	if imported, err := p.inlineImport(c, "table"); imported || err != nil {
		return err
	}

	// (table reftype (elem idx*)) sizes the table to its segment
	if n := c.peek(); n != nil && !n.List {
		if rt, ok := refType(n.Tok.Value); ok && len(c.items) > c.i+1 && c.items[c.i+1].Is("elem") {
			c.next()
			el := c.next()
			funcs, err := p.funcIndices(newCursor(el, 1))
			if err != nil {
				return err
			}
			size := uint32(len(funcs))
			p.mod.Tables = append(p.mod.Tables, ast.Table{
				Limits:   ast.Limits{Min: size, Max: &size},
				ElemType: rt,
			})
			p.take(spaceElem)
			p.mod.Elems = append(p.mod.Elems, ast.Elem{
				Offset:  constI32(0),
				Funcs:   funcs,
				Table:   idx,
				Mode:    ast.ElemActive,
				RefType: rt,
			})
			return c.expectEnd()
		}
	}

	tt, err := p.tableType(c)
	if err != nil {
		return err
	}
	p.mod.Tables = append(p.mod.Tables, tt)
	return c.expectEnd()
}

func (p *Parser) memoryField(f *sexpr.Node) error {
	c := newCursor(f, 1)
	c.optID()
	idx := p.take(spaceMemory)
	if err := p.inlineExports(c, idx, ast.KindMemory); err != nil {
		return err
	}
	if imported, err := p.inlineImport(c, "memory"); imported || err != nil {
		return err
	}

	// (memory (data "...")) sizes the memory to its contents
	if n := c.peek(); n != nil && n.Is("data") {
		c.next()
		dc := newCursor(n, 1)
		var init []byte
		for !dc.done() {
			s, err := dc.expectString()
			if err != nil {
				return err
			}
			init = append(init, s...)
		}
		pages := uint32((uint64(len(init)) + pageSize - 1) / pageSize)
		p.mod.Memories = append(p.mod.Memories, ast.Limits{Min: pages, Max: &pages})
		p.take(spaceData)
		p.mod.Data = append(p.mod.Data, ast.Data{Offset: constI32(0), Init: init, Memory: idx})
		return c.expectEnd()
	}

	l, err := p.memoryType(c)
	if err != nil {
		return err
	}
	p.mod.Memories = append(p.mod.Memories, l)
	return c.expectEnd()
}

func (p *Parser) globalField(f *sexpr.Node) error {
	c := newCursor(f, 1)
	c.optID()
	idx := p.take(spaceGlobal)
	if err := p.inlineExports(c, idx, ast.KindGlobal); err != nil {
		return err
	}
	if imported, err := p.inlineImport(c, "global"); imported || err != nil {
		return err
	}

	gt, err := p.globalType(c)
	if err != nil {
		return err
	}
	init, err := p.constExpr(c)
	if err != nil {
		return err
	}
	p.mod.Globals = append(p.mod.Globals, ast.Global{Type: gt, Init: init})
	return nil
}

var exportKinds = map[string]struct {
	sp   space
	kind byte
}{
	"func":   {spaceFunc, ast.KindFunc},
	"table":  {spaceTable, ast.KindTable},
	"memory": {spaceMemory, ast.KindMemory},
	"global": {spaceGlobal, ast.KindGlobal},
}

func (p *Parser) exportField(f *sexpr.Node) error {
	c := newCursor(f, 1)
	name, err := c.expectString()
	if err != nil {
		return err
	}
	desc := c.next()
	if desc == nil || !desc.List {
		return token.Errorf(c.posOf(desc), "expected export descriptor, got %s", describe(desc))
	}
	ek, ok := exportKinds[desc.Head()]
	if !ok {
		return token.Errorf(desc.Pos(), "unknown export kind %s", describe(desc))
	}
	dc := newCursor(desc, 1)
	ref := dc.next()
	if !isIndex(ref) {
		return token.Errorf(dc.posOf(ref), "expected index, got %s", describe(ref))
	}
	idx, err := p.resolve(ek.sp, ref)
	if err != nil {
		return err
	}
	if err := dc.expectEnd(); err != nil {
		return err
	}
	p.mod.Exports = append(p.mod.Exports, ast.Export{Name: name, Index: idx, Kind: ek.kind})
	return c.expectEnd()
}

func (p *Parser) startField(f *sexpr.Node) error {
	if p.mod.Start != nil {
		return token.Errorf(f.Pos(), "multiple start functions")
	}
	c := newCursor(f, 1)
	ref := c.next()
	if !isIndex(ref) {
		return token.Errorf(c.posOf(ref), "expected function index, got %s", describe(ref))
	}
	idx, err := p.resolve(spaceFunc, ref)
	if err != nil {
		return err
	}
	p.mod.Start = &idx
	return c.expectEnd()
}

func (p *Parser) elemField(f *sexpr.Node) error {
	c := newCursor(f, 1)
	c.optID()
	p.take(spaceElem)
	el := ast.Elem{Mode: ast.ElemPassive, RefType: ast.FuncRef}

	switch n := c.peek(); {
	case n != nil && n.IsAtom(token.Keyword) && n.Tok.Value == "declare":
		c.next()
		el.Mode = ast.ElemDeclarative
	case n != nil && n.Is("table"):
		c.next()
		tc := newCursor(n, 1)
		ref := tc.next()
		if !isIndex(ref) {
			return token.Errorf(tc.posOf(ref), "expected table index, got %s", describe(ref))
		}
		idx, err := p.resolve(spaceTable, ref)
		if err != nil {
			return err
		}
		if err := tc.expectEnd(); err != nil {
			return err
		}
		el.Table = idx
		el.Mode = ast.ElemActive
	case n != nil && n.List:
		el.Mode = ast.ElemActive
	}

	if el.Mode == ast.ElemActive {
		off, err := p.offsetExpr(c)
		if err != nil {
			return err
		}
		el.Offset = off
	}

	funcs, err := p.elemList(c)
	if err != nil {
		return err
	}
	el.Funcs = funcs
	p.mod.Elems = append(p.mod.Elems, el)
	return nil
}

// elemList parses "func idx*", a bare "idx*" list, or
// "funcref (ref.func idx)*" with optional (item ...) wrappers.
func (p *Parser) elemList(c *cursor) ([]uint32, error) {
	n := c.peek()
	if n == nil {
		return nil, nil
	}
	if n.IsAtom(token.Keyword) {
		switch n.Tok.Value {
		case "func":
			c.next()
			return p.funcIndices(c)
		case "funcref":
			c.next()
			var funcs []uint32
			for !c.done() {
				item := c.next()
				if item.Is("item") {
					ic := newCursor(item, 1)
					if inner := ic.peek(); inner != nil && inner.List {
						item = ic.next()
						if err := ic.expectEnd(); err != nil {
							return nil, err
						}
					} else {
						item = &sexpr.Node{Tok: item.Tok, Items: item.Items[1:], End: item.End, List: true}
					}
				}
				idx, err := p.refFunc(item)
				if err != nil {
					return nil, err
				}
				funcs = append(funcs, idx)
			}
			return funcs, nil
		}
	}
	return p.funcIndices(c)
}

func (p *Parser) refFunc(n *sexpr.Node) (uint32, error) {
	if !n.List || len(n.Items) != 2 || n.Items[0].Tok.Value != "ref.func" {
		return 0, token.Errorf(n.Pos(), "expected (ref.func idx), got %s", describe(n))
	}
	return p.resolve(spaceFunc, n.Items[1])
}

func (p *Parser) funcIndices(c *cursor) ([]uint32, error) {
	var funcs []uint32
	for !c.done() {
		n := c.next()
		if !isIndex(n) {
			return nil, token.Errorf(n.Pos(), "expected function index, got %s", describe(n))
		}
		idx, err := p.resolve(spaceFunc, n)
		if err != nil {
			return nil, err
		}
		funcs = append(funcs, idx)
	}
	return funcs, nil
}

func (p *Parser) dataField(f *sexpr.Node) error {
	c := newCursor(f, 1)
	c.optID()
	p.take(spaceData)
	d := ast.Data{Passive: true}

	if n := c.peek(); n != nil && n.Is("memory") {
		c.next()
		mc := newCursor(n, 1)
		ref := mc.next()
		if !isIndex(ref) {
			return token.Errorf(mc.posOf(ref), "expected memory index, got %s", describe(ref))
		}
		idx, err := p.resolve(spaceMemory, ref)
		if err != nil {
			return err
		}
		if err := mc.expectEnd(); err != nil {
			return err
		}
		d.Memory = idx
		d.Passive = false
	}
	if n := c.peek(); n != nil && n.List {
		d.Passive = false
	}
	if !d.Passive {
		if p.counts[spaceMemory] == 0 {
			return token.Errorf(f.Pos(), "active data segment requires a memory")
		}
		off, err := p.offsetExpr(c)
		if err != nil {
			return err
		}
		d.Offset = off
	}

	for !c.done() {
		s, err := c.expectString()
		if err != nil {
			return err
		}
		d.Init = append(d.Init, s...)
	}
	p.mod.Data = append(p.mod.Data, d)
	return nil
}

// offsetExpr parses (offset instr*) or a single folded instruction.
func (p *Parser) offsetExpr(c *cursor) ([]byte, error) {
	n := c.next()
	if n == nil || !n.List {
		return nil, token.Errorf(c.posOf(n), "expected offset expression, got %s", describe(n))
	}
	b := newFuncBuilder(p)
	if n.Is("offset") {
		if err := b.instrs(newCursor(n, 1)); err != nil {
			return nil, err
		}
	} else if err := b.folded(n); err != nil {
		return nil, err
	}
	return append(b.code, opEnd), nil
}

// constExpr encodes the remaining items of c as a constant expression.
func (p *Parser) constExpr(c *cursor) ([]byte, error) {
	if c.done() {
		return nil, token.Errorf(c.pos(), "expected initializer expression")
	}
	b := newFuncBuilder(p)
	if err := b.instrs(c); err != nil {
		return nil, err
	}
	return append(b.code, opEnd), nil
}

func constI32(v int32) []byte {
	b := []byte{0x41}
	b = appendSLEB(b, int64(v))
	return append(b, opEnd)
}

func (p *Parser) signature(c *cursor) (ast.FuncType, []string, error) {
	var ft ast.FuncType
	var names []string
	for n := c.peek(); n != nil && n.Is("param"); n = c.peek() {
		c.next()
		pc := newCursor(n, 1)
		if id := pc.optID(); id != "" {
			vt, err := p.valType(pc)
			if err != nil {
				return ft, nil, err
			}
			ft.Params = append(ft.Params, vt)
			names = append(names, id)
			if err := pc.expectEnd(); err != nil {
				return ft, nil, err
			}
			continue
		}
		for !pc.done() {
			vt, err := p.valType(pc)
			if err != nil {
				return ft, nil, err
			}
			ft.Params = append(ft.Params, vt)
			names = append(names, "")
		}
	}
	for n := c.peek(); n != nil && n.Is("result"); n = c.peek() {
		c.next()
		rc := newCursor(n, 1)
		for !rc.done() {
			vt, err := p.valType(rc)
			if err != nil {
				return ft, nil, err
			}
			ft.Results = append(ft.Results, vt)
		}
	}
	if n := c.peek(); n != nil && n.Is("param") {
		return ft, nil, token.Errorf(n.Pos(), "param after result")
	}
	return ft, names, nil
}

// typeUse parses (type idx)? (param ...)* (result ...)* and returns the
// type index, adding an implicit type when no index is given.
func (p *Parser) typeUse(c *cursor) (uint32, ast.FuncType, []string, error) {
	n := c.peek()
	if n == nil || !n.Is("type") {
		ft, names, err := p.signature(c)
		if err != nil {
			return 0, ft, nil, err
		}
		return p.findOrAddType(ft), ft, names, nil
	}

	c.next()
	tc := newCursor(n, 1)
	ref := tc.next()
	if !isIndex(ref) {
		return 0, ast.FuncType{}, nil, token.Errorf(tc.posOf(ref), "expected type index, got %s", describe(ref))
	}
	idx, err := p.resolve(spaceType, ref)
	if err != nil {
		return 0, ast.FuncType{}, nil, err
	}
	if err := tc.expectEnd(); err != nil {
		return 0, ast.FuncType{}, nil, err
	}

	declared := p.mod.Types[idx]
	ft, names, err := p.signature(c)
	if err != nil {
		return 0, ft, nil, err
	}
	if len(ft.Params) == 0 && len(ft.Results) == 0 {
		return idx, declared, make([]string, len(declared.Params)), nil
	}
	if !ft.Equal(declared) {
		return 0, ft, nil, token.Errorf(n.Pos(), "inline function type does not match type %d", idx)
	}
	return idx, ft, names, nil
}

func (p *Parser) valType(c *cursor) (ast.ValType, error) {
	n := c.next()
	if n != nil && n.IsAtom(token.Keyword) {
		switch n.Tok.Value {
		case "i32":
			return ast.I32, nil
		case "i64":
			return ast.I64, nil
		case "f32":
			return ast.F32, nil
		case "f64":
			return ast.F64, nil
		case "v128":
			return ast.V128, nil
		}
		if rt, ok := refType(n.Tok.Value); ok {
			return rt, nil
		}
	}
	return 0, token.Errorf(c.posOf(n), "expected value type, got %s", describe(n))
}

func refType(s string) (ast.ValType, bool) {
	switch s {
	case "funcref":
		return ast.FuncRef, true
	case "externref":
		return ast.ExternRef, true
	}
	return 0, false
}

func (p *Parser) limits(c *cursor, bound uint64, unit string) (ast.Limits, error) {
	n := c.next()
	if n == nil || !n.IsAtom(token.Number) {
		return ast.Limits{}, token.Errorf(c.posOf(n), "expected %s limit, got %s", unit, describe(n))
	}
	lo, err := parseU32(n)
	if err != nil {
		return ast.Limits{}, err
	}
	if uint64(lo) > bound {
		return ast.Limits{}, token.Errorf(n.Pos(), "%s minimum %d exceeds %d", unit, lo, bound)
	}
	l := ast.Limits{Min: lo}
	if m := c.peek(); m != nil && m.IsAtom(token.Number) {
		c.next()
		hi, err := parseU32(m)
		if err != nil {
			return ast.Limits{}, err
		}
		if uint64(hi) > bound {
			return ast.Limits{}, token.Errorf(m.Pos(), "%s maximum %d exceeds %d", unit, hi, bound)
		}
		if hi < lo {
			return ast.Limits{}, token.Errorf(m.Pos(), "%s maximum %d is below minimum %d", unit, hi, lo)
		}
		l.Max = &hi
	}
	return l, nil
}

func (p *Parser) memoryType(c *cursor) (ast.Limits, error) {
	l, err := p.limits(c, maxMemoryPages, "memory")
	if err != nil {
		return l, err
	}
	if n := c.peek(); n != nil && n.IsAtom(token.Keyword) && n.Tok.Value == "shared" {
		c.next()
		if l.Max == nil {
			return l, token.Errorf(n.Pos(), "shared memory requires a maximum")
		}
		l.Shared = true
	}
	return l, nil
}

func (p *Parser) tableType(c *cursor) (ast.Table, error) {
	l, err := p.limits(c, maxTableSize, "table")
	if err != nil {
		return ast.Table{}, err
	}
	n := c.next()
	if n == nil || n.List {
		return ast.Table{}, token.Errorf(c.posOf(n), "expected reference type, got %s", describe(n))
	}
	rt, ok := refType(n.Tok.Value)
	if !ok {
		return ast.Table{}, token.Errorf(n.Pos(), "expected reference type, got %s", describe(n))
	}
	return ast.Table{Limits: l, ElemType: rt}, nil
}

func (p *Parser) globalType(c *cursor) (ast.GlobalType, error) {
	n := c.peek()
	if n != nil && n.Is("mut") {
		c.next()
		mc := newCursor(n, 1)
		vt, err := p.valType(mc)
		if err != nil {
			return ast.GlobalType{}, err
		}
		return ast.GlobalType{Type: vt, Mutable: true}, mc.expectEnd()
	}
	vt, err := p.valType(c)
	return ast.GlobalType{Type: vt}, err
}
