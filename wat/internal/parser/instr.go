package parser

import (
	"encoding/binary"
	"math/bits"
	"strings"

	"github.com/wippyai/wasm-embed/wasm"
	"github.com/wippyai/wasm-embed/wat/internal/ast"
	"github.com/wippyai/wasm-embed/wat/internal/opcode"
	"github.com/wippyai/wasm-embed/wat/internal/sexpr"
	"github.com/wippyai/wasm-embed/wat/internal/token"
)

const (
	opElse       byte = 0x05
	opEnd        byte = 0x0b
	opSelectType byte = 0x1c
	emptyBlock   byte = 0x40
)

func appendULEB(b []byte, v uint32) []byte { return wasm.AppendULEB128(b, uint64(v)) }
func appendSLEB(b []byte, v int64) []byte  { return wasm.AppendSLEB128(b, v) }

// funcBuilder encodes an instruction sequence for one function body or
// constant expression.
type funcBuilder struct {
	p      *Parser
	locals map[string]uint32
	labels []string // enclosing block labels, innermost last
	code   []byte
	nlocal uint32
}

func newFuncBuilder(p *Parser) *funcBuilder {
	return &funcBuilder{p: p, locals: make(map[string]uint32)}
}

func (b *funcBuilder) addLocal(name string, at *sexpr.Node) error {
	if name != "" {
		if _, dup := b.locals[name]; dup {
			return token.Errorf(at.Pos(), "duplicate local %s", name)
		}
		b.locals[name] = b.nlocal
	}
	b.nlocal++
	return nil
}

// instrs encodes every remaining item of c.
func (b *funcBuilder) instrs(c *cursor) error {
	for !c.done() {
		if err := b.instr(c); err != nil {
			return err
		}
	}
	return nil
}

// instr encodes one plain or folded instruction starting at c.
func (b *funcBuilder) instr(c *cursor) error {
	n := c.next()
	if n.List {
		if n.Annotation != "" {
			return nil
		}
		return b.folded(n)
	}
	if !n.IsAtom(token.Keyword) {
		return token.Errorf(n.Pos(), "expected instruction, got %s", describe(n))
	}

	name := n.Tok.Value
	switch name {
	case "block", "loop", "if":
		return b.plainBlock(name, c)
	case "end", "else":
		return token.Errorf(n.Pos(), "unexpected '%s'", name)
	}
	info, ok := opcode.Lookup(name)
	if !ok {
		return token.Errorf(n.Pos(), "unknown instruction %q", name)
	}
	return b.emit(info, c)
}

func (b *funcBuilder) plainBlock(name string, c *cursor) error {
	info, _ := opcode.Lookup(name)
	label := c.optID()
	bt, err := b.blockType(c)
	if err != nil {
		return err
	}
	b.code = append(b.code, info.Code)
	b.code = append(b.code, bt...)
	b.labels = append(b.labels, label)

	for {
		m := c.peek()
		if m == nil {
			return token.Errorf(c.pos(), "missing 'end' for %s", name)
		}
		if m.IsAtom(token.Keyword) && m.Tok.Value == "end" {
			c.next()
			if err := b.closingLabel(c, label); err != nil {
				return err
			}
			break
		}
		if name == "if" && m.IsAtom(token.Keyword) && m.Tok.Value == "else" {
			c.next()
			if err := b.closingLabel(c, label); err != nil {
				return err
			}
			b.code = append(b.code, opElse)
			continue
		}
		if err := b.instr(c); err != nil {
			return err
		}
	}

	b.labels = b.labels[:len(b.labels)-1]
	b.code = append(b.code, opEnd)
	return nil
}

// closingLabel consumes an optional label after else or end, which must
// repeat the block's own label.
func (b *funcBuilder) closingLabel(c *cursor, label string) error {
	n := c.peek()
	if n == nil || !n.IsAtom(token.ID) {
		return nil
	}
	if n.Tok.Value != label {
		return token.Errorf(n.Pos(), "mismatched label %s, expected %q", n.Tok.Value, label)
	}
	c.next()
	return nil
}

// folded encodes (op imm* operand*) by emitting operands first.
func (b *funcBuilder) folded(n *sexpr.Node) error {
	head := n.Head()
	if head == "" {
		return token.Errorf(n.Pos(), "expected instruction, got %s", describe(n))
	}
	c := newCursor(n, 1)

	switch head {
	case "block", "loop":
		info, _ := opcode.Lookup(head)
		label := c.optID()
		bt, err := b.blockType(c)
		if err != nil {
			return err
		}
		b.code = append(b.code, info.Code)
		b.code = append(b.code, bt...)
		b.labels = append(b.labels, label)
		if err := b.instrs(c); err != nil {
			return err
		}
		b.labels = b.labels[:len(b.labels)-1]
		b.code = append(b.code, opEnd)
		return nil
	case "if":
		return b.foldedIf(c)
	}

	info, ok := opcode.Lookup(head)
	if !ok {
		return token.Errorf(n.Pos(), "unknown instruction %q", head)
	}

	saved := b.code
	b.code = nil
	if err := b.emit(info, c); err != nil {
		return err
	}
	op := b.code
	b.code = saved

	for !c.done() {
		m := c.next()
		if !m.List {
			return token.Errorf(m.Pos(), "unexpected %s in folded %s", describe(m), head)
		}
		if m.Annotation != "" {
			continue
		}
		if err := b.folded(m); err != nil {
			return err
		}
	}
	b.code = append(b.code, op...)
	return nil
}

// foldedIf encodes (if label? blocktype cond* (then ...) (else ...)?).
func (b *funcBuilder) foldedIf(c *cursor) error {
	label := c.optID()
	bt, err := b.blockType(c)
	if err != nil {
		return err
	}

	for m := c.peek(); m != nil && !m.Is("then"); m = c.peek() {
		if !m.List {
			return token.Errorf(m.Pos(), "expected folded condition or (then ...), got %s", describe(m))
		}
		c.next()
		if err := b.folded(m); err != nil {
			return err
		}
	}
	then := c.next()
	if then == nil {
		return token.Errorf(c.pos(), "expected (then ...)")
	}

	b.code = append(b.code, 0x04)
	b.code = append(b.code, bt...)
	b.labels = append(b.labels, label)
	if err := b.instrs(newCursor(then, 1)); err != nil {
		return err
	}
	if els := c.next(); els != nil {
		if !els.Is("else") {
			return token.Errorf(els.Pos(), "expected (else ...), got %s", describe(els))
		}
		b.code = append(b.code, opElse)
		if err := b.instrs(newCursor(els, 1)); err != nil {
			return err
		}
	}
	if err := c.expectEnd(); err != nil {
		return err
	}
	b.labels = b.labels[:len(b.labels)-1]
	b.code = append(b.code, opEnd)
	return nil
}

// blockType encodes an optional block type: empty, a single result, or a
// type index for anything with parameters or multiple results.
func (b *funcBuilder) blockType(c *cursor) ([]byte, error) {
	if n := c.peek(); n != nil && n.Is("type") {
		idx, _, _, err := b.p.typeUse(c)
		if err != nil {
			return nil, err
		}
		return appendSLEB(nil, int64(idx)), nil
	}
	ft, _, err := b.p.signature(c)
	if err != nil {
		return nil, err
	}
	if len(ft.Params) == 0 {
		switch len(ft.Results) {
		case 0:
			return []byte{emptyBlock}, nil
		case 1:
			return []byte{byte(ft.Results[0])}, nil
		}
	}
	return appendSLEB(nil, int64(b.p.findOrAddType(ft))), nil
}

// emit encodes the opcode for info and its immediates read from c.
func (b *funcBuilder) emit(info opcode.Info, c *cursor) error {
	if info.Imm == opcode.Select {
		return b.selectInstr(info, c)
	}
	if info.Prefix {
		b.code = append(b.code, opcode.PrefixFC)
		b.code = appendULEB(b.code, info.Sub)
	} else {
		b.code = append(b.code, info.Code)
	}

	switch info.Imm {
	case opcode.None:
		return nil

	case opcode.MemArg:
		return b.memArg(info, c)

	case opcode.I32:
		v, err := parseInt(b.operand(c), 32)
		if err != nil {
			return err
		}
		b.code = appendSLEB(b.code, int64(int32(uint32(v))))

	case opcode.I64:
		v, err := parseInt(b.operand(c), 64)
		if err != nil {
			return err
		}
		b.code = appendSLEB(b.code, int64(v))

	case opcode.F32:
		v, err := parseFloat(b.operand(c), 32)
		if err != nil {
			return err
		}
		b.code = binary.LittleEndian.AppendUint32(b.code, uint32(v))

	case opcode.F64:
		v, err := parseFloat(b.operand(c), 64)
		if err != nil {
			return err
		}
		b.code = binary.LittleEndian.AppendUint64(b.code, v)

	case opcode.Local:
		idx, err := b.local(b.operand(c))
		if err != nil {
			return err
		}
		b.code = appendULEB(b.code, idx)

	case opcode.Global:
		return b.index(spaceGlobal, b.operand(c))

	case opcode.Func:
		return b.index(spaceFunc, b.operand(c))

	case opcode.Label:
		depth, err := b.label(b.operand(c))
		if err != nil {
			return err
		}
		b.code = appendULEB(b.code, depth)

	case opcode.BrTable:
		var depths []uint32
		for isIndex(c.peek()) {
			d, err := b.label(c.next())
			if err != nil {
				return err
			}
			depths = append(depths, d)
		}
		if len(depths) == 0 {
			return token.Errorf(c.pos(), "br_table requires at least one label")
		}
		b.code = appendULEB(b.code, uint32(len(depths)-1))
		for _, d := range depths {
			b.code = appendULEB(b.code, d)
		}

	case opcode.CallIndirect:
		var table uint32
		if isIndex(c.peek()) {
			idx, err := b.p.resolve(spaceTable, c.next())
			if err != nil {
				return err
			}
			table = idx
		}
		typeIdx, _, _, err := b.p.typeUse(c)
		if err != nil {
			return err
		}
		b.code = appendULEB(b.code, typeIdx)
		b.code = appendULEB(b.code, table)

	case opcode.RefNull:
		n := b.operand(c)
		switch n.Tok.Value {
		case "func", "funcref":
			b.code = append(b.code, byte(ast.FuncRef))
		case "extern", "externref":
			b.code = append(b.code, byte(ast.ExternRef))
		default:
			return token.Errorf(n.Pos(), "expected heap type, got %s", describe(n))
		}

	case opcode.Table:
		return b.optIndex(spaceTable, c)

	case opcode.Memory:
		return b.optIndex(spaceMemory, c)

	case opcode.MemCopy:
		if err := b.optIndex(spaceMemory, c); err != nil {
			return err
		}
		return b.optIndex(spaceMemory, c)

	case opcode.TableCopy:
		if err := b.optIndex(spaceTable, c); err != nil {
			return err
		}
		return b.optIndex(spaceTable, c)

	case opcode.MemInit:
		b.p.mod.DataCount = true
		return b.segmentInit(spaceMemory, spaceData, c)

	case opcode.TableInit:
		return b.segmentInit(spaceTable, spaceElem, c)

	case opcode.Data:
		b.p.mod.DataCount = true
		return b.index(spaceData, b.operand(c))

	case opcode.Elem:
		return b.index(spaceElem, b.operand(c))
	}
	return nil
}

// operand returns the next immediate, or a placeholder positioned where it
// was expected so that the caller reports a located error.
func (b *funcBuilder) operand(c *cursor) *sexpr.Node {
	if n := c.peek(); n != nil && !n.List {
		return c.next()
	}
	return &sexpr.Node{Tok: token.Token{Value: ")", Type: token.RParen, Pos: c.pos()}}
}

func (b *funcBuilder) index(sp space, n *sexpr.Node) error {
	if !isIndex(n) {
		return token.Errorf(n.Pos(), "expected %s index, got %s", spaceNames[sp], describe(n))
	}
	idx, err := b.p.resolve(sp, n)
	if err != nil {
		return err
	}
	b.code = appendULEB(b.code, idx)
	return nil
}

func (b *funcBuilder) optIndex(sp space, c *cursor) error {
	if isIndex(c.peek()) {
		return b.index(sp, c.next())
	}
	b.code = appendULEB(b.code, 0)
	return nil
}

// segmentInit encodes memory.init and table.init, whose text form puts the
// optional target index before the segment index and whose binary form
// reverses them.
func (b *funcBuilder) segmentInit(target, segment space, c *cursor) error {
	first := b.operand(c)
	var targetIdx uint32
	segNode := first
	if isIndex(c.peek()) {
		idx, err := b.p.resolve(target, first)
		if err != nil {
			return err
		}
		targetIdx = idx
		segNode = c.next()
	}
	if err := b.index(segment, segNode); err != nil {
		return err
	}
	b.code = appendULEB(b.code, targetIdx)
	return nil
}

func (b *funcBuilder) selectInstr(info opcode.Info, c *cursor) error {
	var results []ast.ValType
	for n := c.peek(); n != nil && n.Is("result"); n = c.peek() {
		c.next()
		rc := newCursor(n, 1)
		for !rc.done() {
			vt, err := b.p.valType(rc)
			if err != nil {
				return err
			}
			results = append(results, vt)
		}
	}
	if results == nil {
		b.code = append(b.code, info.Code)
		return nil
	}
	b.code = append(b.code, opSelectType)
	b.code = appendULEB(b.code, uint32(len(results)))
	for _, vt := range results {
		b.code = append(b.code, byte(vt))
	}
	return nil
}

func (b *funcBuilder) memArg(info opcode.Info, c *cursor) error {
	var offset uint32
	align := info.Align
	for n := c.peek(); n != nil && n.IsAtom(token.Keyword); n = c.peek() {
		key, val, ok := strings.Cut(n.Tok.Value, "=")
		if !ok || (key != "offset" && key != "align") {
			break
		}
		c.next()
		num := &sexpr.Node{Tok: token.Token{Value: val, Type: token.Number, Pos: n.Pos()}}
		v, err := parseU32(num)
		if err != nil {
			return err
		}
		if key == "offset" {
			offset = v
			continue
		}
		if v == 0 || v&(v-1) != 0 {
			return token.Errorf(n.Pos(), "alignment %d is not a power of two", v)
		}
		a := uint32(bits.TrailingZeros32(v))
		if a > info.Align {
			return token.Errorf(n.Pos(), "alignment %d exceeds natural alignment %d", v, 1<<info.Align)
		}
		align = a
	}
	b.code = appendULEB(b.code, align)
	b.code = appendULEB(b.code, offset)
	return nil
}

func (b *funcBuilder) local(n *sexpr.Node) (uint32, error) {
	if n.IsAtom(token.ID) {
		idx, ok := b.locals[n.Tok.Value]
		if !ok {
			return 0, token.Errorf(n.Pos(), "unknown local %s", n.Tok.Value)
		}
		return idx, nil
	}
	if !n.IsAtom(token.Number) {
		return 0, token.Errorf(n.Pos(), "expected local index, got %s", describe(n))
	}
	idx, err := parseU32(n)
	if err != nil {
		return 0, err
	}
	if idx >= b.nlocal {
		return 0, token.Errorf(n.Pos(), "local index %d out of range", idx)
	}
	return idx, nil
}

// label resolves a branch target to its relative depth.
func (b *funcBuilder) label(n *sexpr.Node) (uint32, error) {
	if n.IsAtom(token.ID) {
		for i := len(b.labels) - 1; i >= 0; i-- {
			if b.labels[i] == n.Tok.Value {
				return uint32(len(b.labels) - 1 - i), nil
			}
		}
		return 0, token.Errorf(n.Pos(), "unknown label %s", n.Tok.Value)
	}
	if !n.IsAtom(token.Number) {
		return 0, token.Errorf(n.Pos(), "expected label, got %s", describe(n))
	}
	depth, err := parseU32(n)
	if err != nil {
		return 0, err
	}
	// depth len(labels) targets the function body itself
	if depth > uint32(len(b.labels)) {
		return 0, token.Errorf(n.Pos(), "branch depth %d out of range", depth)
	}
	return depth, nil
}
