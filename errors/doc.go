// Package errors provides structured error types for the embedding API.
//
// Errors are categorized by Phase (where in the lifecycle the error occurred)
// and Kind (error category). The Error type carries the value path, the
// interface type involved and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
//		Path("get", "result0").
//		WitType("string").
//		Detail("pointer %d past end of memory", ptr).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Configuration("unknown strategy %d", s)
//	err := errors.Arity(errors.PhaseCall, "arguments", 2, 1)
//
// Kind-only sentinels (ErrReleased, ErrContract, ...) match any phase:
//
//	if errors.Is(err, wembederrors.ErrReleased) { ... }
package errors
