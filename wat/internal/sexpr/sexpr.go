// Package sexpr groups tokens into a tree of lists and atoms.
package sexpr

import "github.com/wippyai/wasm-embed/wat/internal/token"

// Node is either an atom (a single token) or a parenthesized list.
// Annotation lists "(@name ...)" have Annotation set to name.
type Node struct {
	Tok        token.Token
	Items      []*Node
	Annotation string
	End        token.Pos
	List       bool
}

// Pos returns the position of the node's first token.
func (n *Node) Pos() token.Pos {
	return n.Tok.Pos
}

// Head returns the keyword at the start of a list, or "".
func (n *Node) Head() string {
	if !n.List || len(n.Items) == 0 || n.Items[0].List {
		return ""
	}
	if n.Items[0].Tok.Type != token.Keyword {
		return ""
	}
	return n.Items[0].Tok.Value
}

// Is reports whether n is a list headed by keyword kw.
func (n *Node) Is(kw string) bool {
	return n.Head() == kw
}

// IsAtom reports whether n is an atom of type t.
func (n *Node) IsAtom(t token.Type) bool {
	return !n.List && n.Tok.Type == t
}

// Parse builds the node forest for tokens.
func Parse(tokens []token.Token) ([]*Node, error) {
	var stack [][]*Node
	var open []*Node
	var cur []*Node

	for _, t := range tokens {
		switch t.Type {
		case token.LParen, token.Annotation:
			n := &Node{Tok: t, List: true}
			if t.Type == token.Annotation {
				n.Annotation = t.Value
			}
			stack = append(stack, cur)
			open = append(open, n)
			cur = nil
		case token.RParen:
			if len(open) == 0 {
				return nil, token.Errorf(t.Pos, "unexpected ')'")
			}
			n := open[len(open)-1]
			open = open[:len(open)-1]
			n.Items = cur
			n.End = t.Pos
			cur = append(stack[len(stack)-1], n)
			stack = stack[:len(stack)-1]
		default:
			cur = append(cur, &Node{Tok: t})
		}
	}
	if len(open) > 0 {
		return nil, token.Errorf(open[len(open)-1].Pos(), "unclosed '('")
	}
	return cur, nil
}
