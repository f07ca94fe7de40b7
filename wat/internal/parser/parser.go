package parser

import (
	"github.com/wippyai/wasm-embed/wat/internal/ast"
	"github.com/wippyai/wasm-embed/wat/internal/sexpr"
	"github.com/wippyai/wasm-embed/wat/internal/token"
)

type space int

const (
	spaceType space = iota
	spaceFunc
	spaceTable
	spaceMemory
	spaceGlobal
	spaceElem
	spaceData
	numSpaces
)

var spaceNames = [numSpaces]string{"type", "function", "table", "memory", "global", "elem", "data"}

// Parser resolves a module's S-expression tree into an ast.Module.
//
// Parsing runs in two passes: the first assigns indices and names in every
// index space so that later fields may reference earlier or later
// definitions; the second builds definitions and encodes function bodies.
type Parser struct {
	mod     *ast.Module
	names   [numSpaces]map[string]uint32
	counts  [numSpaces]uint32
	cur     [numSpaces]uint32 // next index to define in the second pass
	defined [numSpaces]bool   // a non-import definition has been seen
}

// New creates a parser for a single module.
func New() *Parser {
	p := &Parser{mod: &ast.Module{}}
	for i := range p.names {
		p.names[i] = make(map[string]uint32)
	}
	return p
}

// Parse converts tokens into a resolved module.
func (p *Parser) Parse(tokens []token.Token) (*ast.Module, error) {
	forest, err := sexpr.Parse(tokens)
	if err != nil {
		return nil, err
	}

	fields, err := moduleFields(forest)
	if err != nil {
		return nil, err
	}

	for _, f := range fields {
		if err := p.declare(f); err != nil {
			return nil, err
		}
	}
	for _, f := range fields {
		if err := p.define(f); err != nil {
			return nil, err
		}
	}
	return p.mod, nil
}

func moduleFields(forest []*sexpr.Node) ([]*sexpr.Node, error) {
	if len(forest) == 1 && forest[0].Is("module") {
		items := forest[0].Items[1:]
		if len(items) > 0 && items[0].IsAtom(token.ID) {
			items = items[1:]
		}
		for _, it := range items {
			if !it.List {
				return nil, token.Errorf(it.Pos(), "expected module field, got %s", describe(it))
			}
		}
		return items, nil
	}
	for _, n := range forest {
		if !n.List {
			return nil, token.Errorf(n.Pos(), "expected module field, got %s", describe(n))
		}
		if n.Is("module") {
			return nil, token.Errorf(n.Pos(), "multiple modules are not supported")
		}
	}
	return forest, nil
}

// declare is the first pass: it assigns an index and optional name to every
// definition.
func (p *Parser) declare(f *sexpr.Node) error {
	if f.Annotation != "" {
		return nil
	}
	head := f.Head()
	switch head {
	case "type":
		ft, err := p.typeField(f)
		if err != nil {
			return err
		}
		p.mod.Types = append(p.mod.Types, ft)
		return p.bind(spaceType, f.Items[1:], false, f)

	case "import":
		if len(f.Items) < 4 || !f.Items[3].List {
			return token.Errorf(f.Pos(), "import requires module name, field name and descriptor")
		}
		desc := f.Items[3]
		sp, ok := descSpace(desc.Head())
		if !ok {
			return token.Errorf(desc.Pos(), "unknown import kind %q", desc.Head())
		}
		return p.bind(sp, desc.Items[1:], true, desc)

	case "func", "table", "memory", "global":
		sp, _ := descSpace(head)
		isImport := hasChild(f, "import")
		if err := p.bind(sp, f.Items[1:], isImport, f); err != nil {
			return err
		}
		// inline (elem ...) and (data ...) abbreviations define segments
		if head == "table" && hasChild(f, "elem") {
			return p.bind(spaceElem, nil, false, f)
		}
		if head == "memory" && hasChild(f, "data") {
			return p.bind(spaceData, nil, false, f)
		}
		return nil

	case "elem":
		return p.bind(spaceElem, f.Items[1:], false, f)
	case "data":
		return p.bind(spaceData, f.Items[1:], false, f)
	case "export", "start":
		return nil
	}
	return token.Errorf(f.Pos(), "unknown module field %s", describe(f))
}

func descSpace(head string) (space, bool) {
	switch head {
	case "func":
		return spaceFunc, true
	case "table":
		return spaceTable, true
	case "memory":
		return spaceMemory, true
	case "global":
		return spaceGlobal, true
	}
	return 0, false
}

// bind assigns the next index in sp, recording the optional leading $id.
func (p *Parser) bind(sp space, rest []*sexpr.Node, isImport bool, at *sexpr.Node) error {
	if isImport && p.defined[sp] {
		return token.Errorf(at.Pos(), "import after %s definition", spaceNames[sp])
	}
	if !isImport {
		p.defined[sp] = true
	}
	idx := p.counts[sp]
	p.counts[sp]++
	if len(rest) > 0 && rest[0].IsAtom(token.ID) {
		name := rest[0].Tok.Value
		if _, dup := p.names[sp][name]; dup {
			return token.Errorf(rest[0].Pos(), "duplicate %s identifier %s", spaceNames[sp], name)
		}
		p.names[sp][name] = idx
	}
	return nil
}

func hasChild(f *sexpr.Node, head string) bool {
	for _, it := range f.Items[1:] {
		if it.Is(head) {
			return true
		}
	}
	return false
}

// resolve turns an index or $name atom into an index in sp.
func (p *Parser) resolve(sp space, n *sexpr.Node) (uint32, error) {
	if n.IsAtom(token.ID) {
		idx, ok := p.names[sp][n.Tok.Value]
		if !ok {
			return 0, token.Errorf(n.Pos(), "unknown %s %s", spaceNames[sp], n.Tok.Value)
		}
		return idx, nil
	}
	idx, err := parseU32(n)
	if err != nil {
		return 0, err
	}
	if idx >= p.counts[sp] {
		return 0, token.Errorf(n.Pos(), "%s index %d out of range", spaceNames[sp], idx)
	}
	return idx, nil
}

// take returns the index of the next definition in sp during the second pass.
func (p *Parser) take(sp space) uint32 {
	idx := p.cur[sp]
	p.cur[sp]++
	return idx
}

func isIndex(n *sexpr.Node) bool {
	return n != nil && (n.IsAtom(token.ID) || n.IsAtom(token.Number))
}

func (p *Parser) findOrAddType(ft ast.FuncType) uint32 {
	for i, t := range p.mod.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	p.mod.Types = append(p.mod.Types, ft)
	return uint32(len(p.mod.Types) - 1)
}

func describe(n *sexpr.Node) string {
	if n == nil {
		return "end of list"
	}
	if n.List {
		if n.Annotation != "" {
			return "(@" + n.Annotation + " ...)"
		}
		if h := n.Head(); h != "" {
			return "(" + h + " ...)"
		}
		return "list"
	}
	switch n.Tok.Type {
	case token.String:
		return "string"
	}
	return "'" + n.Tok.Value + "'"
}

// cursor walks the items of a list.
type cursor struct {
	items []*sexpr.Node
	list  *sexpr.Node
	i     int
}

func newCursor(list *sexpr.Node, skip int) *cursor {
	return &cursor{items: list.Items, list: list, i: skip}
}

func (c *cursor) peek() *sexpr.Node {
	if c.i < len(c.items) {
		return c.items[c.i]
	}
	return nil
}

func (c *cursor) next() *sexpr.Node {
	n := c.peek()
	if n != nil {
		c.i++
	}
	return n
}

func (c *cursor) done() bool {
	return c.i >= len(c.items)
}

// pos returns the position of the next item, or of the closing paren.
func (c *cursor) pos() token.Pos {
	if n := c.peek(); n != nil {
		return n.Pos()
	}
	return c.list.End
}

func (c *cursor) optID() string {
	if n := c.peek(); n != nil && n.IsAtom(token.ID) {
		c.i++
		return n.Tok.Value
	}
	return ""
}

func (c *cursor) expectString() (string, error) {
	n := c.next()
	if n == nil || !n.IsAtom(token.String) {
		return "", token.Errorf(c.posOf(n), "expected string, got %s", describe(n))
	}
	return n.Tok.Value, nil
}

func (c *cursor) posOf(n *sexpr.Node) token.Pos {
	if n != nil {
		return n.Pos()
	}
	return c.list.End
}

func (c *cursor) expectEnd() error {
	if n := c.peek(); n != nil {
		return token.Errorf(n.Pos(), "unexpected %s", describe(n))
	}
	return nil
}
