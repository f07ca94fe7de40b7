package transcoder

import (
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-embed/errors"
)

// SectionName is the custom section that carries interface signatures.
const SectionName = "interface-types"

// Param is a named interface parameter.
type Param struct {
	Type wit.Type
	Name string
}

// Signature is the interface-level type of one export.
type Signature struct {
	Name    string
	Params  []Param
	Results []wit.Type
}

// ParamTypes returns the parameter types in order.
func (s *Signature) ParamTypes() []wit.Type {
	out := make([]wit.Type, len(s.Params))
	for i, p := range s.Params {
		out[i] = p.Type
	}
	return out
}

func (s *Signature) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteString(": func(")
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteString(": ")
		b.WriteString(TypeString(p.Type))
	}
	b.WriteByte(')')
	switch len(s.Results) {
	case 0:
	case 1:
		b.WriteString(" -> ")
		b.WriteString(TypeString(s.Results[0]))
	default:
		b.WriteString(" -> (")
		for i, r := range s.Results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(TypeString(r))
		}
		b.WriteByte(')')
	}
	return b.String()
}

// ParseSignatures parses declarations of the form
//
//	name: func(a: T, b: U) -> R;
//
// in declaration order. "export" prefixes and // comments are accepted.
// Results may be a single type or a parenthesized list, optionally named.
func ParseSignatures(text string) ([]Signature, error) {
	p := &sigParser{src: text}
	var sigs []Signature
	seen := make(map[string]bool)

	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		sig, err := p.signature()
		if err != nil {
			return nil, errors.ParseFailed("interface signatures", err)
		}
		if seen[sig.Name] {
			return nil, errors.ParseFailed("interface signatures", fmt.Errorf("duplicate signature for %q", sig.Name))
		}
		seen[sig.Name] = true
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// ParseType parses a single interface type such as "list<string>".
func ParseType(text string) (wit.Type, error) {
	p := &sigParser{src: text}
	t, err := p.typ()
	if err == nil {
		p.skipSpace()
		if !p.eof() {
			err = p.errorf("unexpected %q after type", p.src[p.pos:])
		}
	}
	if err != nil {
		return nil, errors.ParseFailed("interface type", err)
	}
	return t, nil
}

type sigParser struct {
	src string
	pos int
}

func (p *sigParser) eof() bool { return p.pos >= len(p.src) }

func (p *sigParser) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *sigParser) skipSpace() {
	for !p.eof() {
		c := p.src[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		case strings.HasPrefix(p.src[p.pos:], "//"):
			for !p.eof() && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func isNameChar(c byte) bool {
	return c == '-' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (p *sigParser) name() (string, error) {
	p.skipSpace()
	start := p.pos
	for !p.eof() && isNameChar(p.src[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		if p.eof() {
			return "", p.errorf("expected name, got end of input")
		}
		return "", p.errorf("expected name, got %q", p.src[p.pos])
	}
	return strings.TrimPrefix(p.src[start:p.pos], "%"), nil
}

// accept consumes tok if it is next.
func (p *sigParser) accept(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *sigParser) expect(tok string) error {
	if !p.accept(tok) {
		if p.eof() {
			return p.errorf("expected %q, got end of input", tok)
		}
		return p.errorf("expected %q", tok)
	}
	return nil
}

func (p *sigParser) signature() (Signature, error) {
	var sig Signature
	name, err := p.name()
	if err != nil {
		return sig, err
	}
	if name == "export" {
		if name, err = p.name(); err != nil {
			return sig, err
		}
	}
	sig.Name = name

	if err := p.expect(":"); err != nil {
		return sig, err
	}
	if kw, err := p.name(); err != nil || kw != "func" {
		return sig, p.errorf("expected \"func\" in signature of %q", name)
	}
	if err := p.expect("("); err != nil {
		return sig, err
	}
	for !p.accept(")") {
		if len(sig.Params) > 0 {
			if err := p.expect(","); err != nil {
				return sig, err
			}
			if p.accept(")") {
				break
			}
		}
		pname, err := p.name()
		if err != nil {
			return sig, err
		}
		if err := p.expect(":"); err != nil {
			return sig, err
		}
		t, err := p.typ()
		if err != nil {
			return sig, err
		}
		sig.Params = append(sig.Params, Param{Name: pname, Type: t})
	}

	if p.accept("->") {
		results, err := p.results()
		if err != nil {
			return sig, err
		}
		sig.Results = results
	}
	if err := p.expect(";"); err != nil {
		return sig, err
	}
	return sig, nil
}

// results parses "T" or "(T, ...)" or "(name: T, ...)".
func (p *sigParser) results() ([]wit.Type, error) {
	if !p.accept("(") {
		t, err := p.typ()
		if err != nil {
			return nil, err
		}
		return []wit.Type{t}, nil
	}
	var out []wit.Type
	for !p.accept(")") {
		if len(out) > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
			if p.accept(")") {
				break
			}
		}
		save := p.pos
		if _, err := p.name(); err == nil && p.accept(":") {
			// named result
		} else {
			p.pos = save
		}
		t, err := p.typ()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (p *sigParser) typ() (wit.Type, error) {
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	switch name {
	case "list":
		if err := p.expect("<"); err != nil {
			return nil, err
		}
		elem, err := p.typ()
		if err != nil {
			return nil, err
		}
		if err := p.expect(">"); err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.List{Type: elem}}, nil

	case "tuple":
		if err := p.expect("<"); err != nil {
			return nil, err
		}
		var types []wit.Type
		for !p.accept(">") {
			if len(types) > 0 {
				if err := p.expect(","); err != nil {
					return nil, err
				}
			}
			t, err := p.typ()
			if err != nil {
				return nil, err
			}
			types = append(types, t)
		}
		return &wit.TypeDef{Kind: &wit.Tuple{Types: types}}, nil

	case "record":
		if err := p.expect("{"); err != nil {
			return nil, err
		}
		var fields []wit.Field
		for !p.accept("}") {
			if len(fields) > 0 {
				if err := p.expect(","); err != nil {
					return nil, err
				}
				if p.accept("}") {
					break
				}
			}
			fname, err := p.name()
			if err != nil {
				return nil, err
			}
			if err := p.expect(":"); err != nil {
				return nil, err
			}
			t, err := p.typ()
			if err != nil {
				return nil, err
			}
			fields = append(fields, wit.Field{Name: fname, Type: t})
		}
		return &wit.TypeDef{Kind: &wit.Record{Fields: fields}}, nil
	}

	t, err := wit.ParseType(name)
	if err != nil {
		return nil, p.errorf("unsupported type %q", name)
	}
	return t, nil
}

// TypeString renders t in signature syntax.
func TypeString(t wit.Type) string {
	switch t := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.S8:
		return "s8"
	case wit.U8:
		return "u8"
	case wit.S16:
		return "s16"
	case wit.U16:
		return "u16"
	case wit.S32:
		return "s32"
	case wit.U32:
		return "u32"
	case wit.S64:
		return "s64"
	case wit.U64:
		return "u64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.List:
			return "list<" + TypeString(kind.Type) + ">"
		case *wit.Tuple:
			parts := make([]string, len(kind.Types))
			for i, e := range kind.Types {
				parts[i] = TypeString(e)
			}
			return "tuple<" + strings.Join(parts, ", ") + ">"
		case *wit.Record:
			parts := make([]string, len(kind.Fields))
			for i, f := range kind.Fields {
				parts[i] = f.Name + ": " + TypeString(f.Type)
			}
			return "record { " + strings.Join(parts, ", ") + " }"
		case wit.Type:
			return TypeString(kind)
		}
	}
	return fmt.Sprintf("%T", t)
}
