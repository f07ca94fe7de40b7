package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-embed/wat/internal/sexpr"
	"github.com/wippyai/wasm-embed/wat/internal/token"
)

// parseInt parses an integer literal that must fit in bits as either a
// signed or an unsigned value and returns its two's complement bits.
func parseInt(n *sexpr.Node, bits int) (uint64, error) {
	if !n.IsAtom(token.Number) {
		return 0, token.Errorf(n.Pos(), "expected integer, got %s", describe(n))
	}
	s := strings.ReplaceAll(n.Tok.Value, "_", "")
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, token.Errorf(n.Pos(), "invalid integer literal %q", n.Tok.Value)
	}

	if neg {
		limit := uint64(1) << (bits - 1)
		if v > limit {
			return 0, token.Errorf(n.Pos(), "integer constant %q out of range", n.Tok.Value)
		}
		v = -v
		if bits < 64 {
			v &= (uint64(1) << bits) - 1
		}
		return v, nil
	}
	if bits < 64 && v >= uint64(1)<<bits {
		return 0, token.Errorf(n.Pos(), "integer constant %q out of range", n.Tok.Value)
	}
	return v, nil
}

// parseU32 parses an unsigned 32-bit literal such as an index or limit.
func parseU32(n *sexpr.Node) (uint32, error) {
	if !n.IsAtom(token.Number) || strings.HasPrefix(n.Tok.Value, "-") || strings.HasPrefix(n.Tok.Value, "+") {
		return 0, token.Errorf(n.Pos(), "expected unsigned integer, got %s", describe(n))
	}
	v, err := parseInt(n, 32)
	return uint32(v), err
}

// parseFloat parses a float literal of the given width and returns its bits.
func parseFloat(n *sexpr.Node, bits int) (uint64, error) {
	if !n.IsAtom(token.Number) {
		return 0, token.Errorf(n.Pos(), "expected float, got %s", describe(n))
	}
	s := strings.ReplaceAll(n.Tok.Value, "_", "")
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	var sign uint64
	if neg {
		sign = 1 << (bits - 1)
	}

	switch {
	case s == "inf":
		if bits == 32 {
			return sign | 0x7f800000, nil
		}
		return sign | 0x7ff0000000000000, nil
	case s == "nan":
		if bits == 32 {
			return sign | 0x7fc00000, nil
		}
		return sign | 0x7ff8000000000000, nil
	case strings.HasPrefix(s, "nan:0x"):
		payload, err := strconv.ParseUint(s[len("nan:0x"):], 16, 64)
		if err != nil || payload == 0 {
			return 0, token.Errorf(n.Pos(), "invalid NaN payload %q", n.Tok.Value)
		}
		if bits == 32 {
			if payload >= 1<<23 {
				return 0, token.Errorf(n.Pos(), "NaN payload %q out of range", n.Tok.Value)
			}
			return sign | 0x7f800000 | payload, nil
		}
		if payload >= 1<<52 {
			return 0, token.Errorf(n.Pos(), "NaN payload %q out of range", n.Tok.Value)
		}
		return sign | 0x7ff0000000000000 | payload, nil
	}

	if (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) && !strings.ContainsAny(s, "pP") {
		s += "p0"
	}
	f, err := strconv.ParseFloat(s, bits)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return 0, token.Errorf(n.Pos(), "float constant %q out of range", n.Tok.Value)
		}
		return 0, token.Errorf(n.Pos(), "invalid float literal %q", n.Tok.Value)
	}
	if bits == 32 {
		return sign | uint64(math.Float32bits(float32(f))), nil
	}
	return sign | math.Float64bits(f), nil
}
