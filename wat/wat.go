package wat

import (
	"github.com/wippyai/wasm-embed/wat/internal/encoder"
	"github.com/wippyai/wasm-embed/wat/internal/parser"
	"github.com/wippyai/wasm-embed/wat/internal/token"
)

// Error is a diagnostic located at a 1-based line and column.
type Error = token.Error

// Pos is a 1-based source location.
type Pos = token.Pos

// Compile converts a text-format module into its binary encoding.
// Failures are reported as *Error.
func Compile(source string) ([]byte, error) {
	tokens, err := token.Tokenize(source)
	if err != nil {
		return nil, err
	}
	mod, err := parser.New().Parse(tokens)
	if err != nil {
		return nil, err
	}
	return encoder.Encode(mod), nil
}
