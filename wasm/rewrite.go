package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-embed/wasm/internal/binary"
)

// ImportName is the two-level name an import resolves against.
type ImportName struct {
	Module string
	Name   string
}

// RewriteImports returns a copy of data in which import i is renamed to
// names[i]. Import kinds and types are preserved; all other sections are
// copied byte for byte. len(names) must equal the number of imports.
func RewriteImports(data []byte, names []ImportName) ([]byte, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("module too short: %d bytes", len(data))
	}

	r := binary.NewReader(data, 0)
	if err := r.Skip(8); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(data)+len(names)*16)
	out = append(out, data[:8]...)
	seen := false

	for r.Len() > 0 {
		id, _ := r.ReadByte()
		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		start := r.Position()
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		if id != SectionImport {
			out = binary.AppendSection(out, id, payload)
			continue
		}
		seen = true

		rewritten, err := rewriteImportSection(binary.NewReader(payload, start), names)
		if err != nil {
			return nil, fmt.Errorf("import section: %w", err)
		}
		out = binary.AppendSection(out, id, rewritten)
	}

	if !seen && len(names) > 0 {
		return nil, fmt.Errorf("module has no imports, %d names given", len(names))
	}
	return out, nil
}

func rewriteImportSection(r *binary.Reader, names []ImportName) ([]byte, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(count) != len(names) {
		return nil, fmt.Errorf("module declares %d imports, %d names given", count, len(names))
	}

	out := binary.AppendU32(nil, count)
	for i := uint32(0); i < count; i++ {
		imp, err := readImport(r)
		if err != nil {
			return nil, fmt.Errorf("import %d: %w", i, err)
		}
		imp.Module = names[i].Module
		imp.Name = names[i].Name
		out = AppendImport(out, imp)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return out, nil
}
