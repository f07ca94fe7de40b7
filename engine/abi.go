package engine

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-embed/transcoder"
	"github.com/wippyai/wasm-embed/wasm"
)

const (
	CabiRealloc = "cabi_realloc"
	CabiFree    = "cabi_free"
	// CabiPostPrefix names the function that releases an export's results.
	CabiPostPrefix = "cabi_post_"

	// Legacy names from pre-standardization component model implementations
	legacyRealloc = "canonical_abi_realloc"
	legacyAlloc   = "allocate"
	simpleAlloc   = "alloc"
	legacyDealloc = "deallocate"
	simpleFree    = "free"
)

// callPlan is how an adapter maps an interface signature onto the core
// function that implements it.
type callPlan struct {
	sig     *transcoder.Signature
	results []wit.Type
	// spill passes all arguments through one pointer to a tuple.
	spill bool
	// retptr reads results from the tuple the returned pointer addresses.
	retptr bool
	// memory is set when the call reads or writes linear memory.
	memory bool
}

// planCall checks that core can carry sig and picks the convention.
// Parameters are passed flat, or through a pointer when they flatten to more
// than transcoder.MaxFlatParams values. Results come back flat, or through a
// returned pointer when the core function returns a single i32 for a result
// that flattens to more than one value.
func planCall(sig *transcoder.Signature, core wasm.FuncType) (*callPlan, error) {
	plan := &callPlan{sig: sig, results: sig.Results}

	flatParams := transcoder.FlatTypes(sig.ParamTypes())
	switch {
	case sameTypes(flatParams, core.Params):
	case len(flatParams) > transcoder.MaxFlatParams && isSingleI32(core.Params):
		plan.spill = true
	default:
		return nil, fmt.Errorf("core params %v cannot carry %s", core.Params, sig)
	}

	flatResults := transcoder.FlatTypes(sig.Results)
	switch {
	case sameTypes(flatResults, core.Results):
	case len(flatResults) > transcoder.MaxFlatResults && isSingleI32(core.Results):
		plan.retptr = true
	default:
		return nil, fmt.Errorf("core results %v cannot carry %s", core.Results, sig)
	}
	plan.memory = plan.spill || plan.retptr ||
		transcoder.UsesMemory(sig.ParamTypes()) || transcoder.UsesMemory(sig.Results)
	return plan, nil
}

func sameTypes(flat []api.ValueType, core []wasm.ValType) bool {
	if len(flat) != len(core) {
		return false
	}
	for i := range flat {
		if wasm.ValType(flat[i]) != core[i] {
			return false
		}
	}
	return true
}

func isSingleI32(ts []wasm.ValType) bool {
	return len(ts) == 1 && ts[0] == wasm.ValI32
}

// valueTypes converts binary value types to the runtime's.
func valueTypes(ts []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(ts))
	for i, t := range ts {
		out[i] = api.ValueType(t)
	}
	return out
}
