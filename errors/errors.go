package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the embedding lifecycle the error occurred
type Phase string

const (
	PhaseConfig      Phase = "config"      // engine configuration
	PhaseParse       Phase = "parse"       // text format and signature parsing
	PhaseCompile     Phase = "compile"     // module validation and compilation
	PhaseInstantiate Phase = "instantiate" // import binding and start routine
	PhaseCall        Phase = "call"        // export invocation
	PhaseEncode      Phase = "encode"      // host value to linear memory
	PhaseDecode      Phase = "decode"      // linear memory to host value
	PhaseLifecycle   Phase = "lifecycle"   // handle creation and release
)

// Kind categorizes the error
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindContract      Kind = "contract"
	KindReleased      Kind = "released"
	KindTypeMismatch  Kind = "type_mismatch"
	KindArity         Kind = "arity"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindInvalidData   Kind = "invalid_data"
	KindInvalidUTF8   Kind = "invalid_utf8"
	KindUnsupported   Kind = "unsupported"
	KindAllocation    Kind = "allocation"
	KindOverflow      Kind = "overflow"
	KindNotFound      Kind = "not_found"
	KindLiveChildren  Kind = "live_children"
	KindForeignStore  Kind = "foreign_store"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	WitType string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.WitType != "" {
		b.WriteString(": type ")
		b.WriteString(e.WitType)
	}

	if e.Detail != "" {
		if e.WitType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// An empty Phase or Kind in target acts as a wildcard.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return true
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// WitType sets the interface type name
func (b *Builder) WitType(t string) *Builder {
	b.err.WitType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Sentinels usable with errors.Is from the standard library.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrContract      = &Error{Kind: KindContract}
	ErrReleased      = &Error{Kind: KindReleased}
	ErrInvalidUTF8   = &Error{Kind: KindInvalidUTF8}
	ErrOutOfBounds   = &Error{Kind: KindOutOfBounds}
	ErrLiveChildren  = &Error{Kind: KindLiveChildren}
)

// Configuration creates an engine configuration error
func Configuration(detail string, args ...any) *Error {
	return New(PhaseConfig, KindConfiguration).Detail(detail, args...).Build()
}

// Contract creates a caller contract violation error
func Contract(phase Phase, detail string, args ...any) *Error {
	return New(phase, KindContract).Detail(detail, args...).Build()
}

// Arity creates an argument or result count mismatch error
func Arity(phase Phase, what string, expected, got int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindArity,
		Detail: fmt.Sprintf("expected %d %s, got %d", expected, what, got),
		Value:  got,
	}
}

// Released creates a use-after-release or double-release error
func Released(what string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindReleased,
		Detail: what + " already released",
	}
}

// LiveChildren creates an error for releasing an owner that still has dependents
func LiveChildren(what string, live int64, child string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindLiveChildren,
		Detail: fmt.Sprintf("%s still owns %d live %s(s)", what, live, child),
		Value:  live,
	}
}

// ForeignStore creates an error for mixing objects of different stores
func ForeignStore(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindForeignStore,
		Detail: what + " belongs to a different store",
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, expected, got string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTypeMismatch,
		Path:    path,
		WitType: expected,
		Detail:  "got " + got,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// OutOfBounds creates a linear memory range error
func OutOfBounds(phase Phase, path []string, offset, length uint64, size uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("range [%d, %d) exceeds memory size %d", offset, offset+length, size),
		Value:  offset,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindOverflow,
		Path:    path,
		WitType: targetType,
		Detail:  fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:   value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// CompileFailed creates a module compilation error
func CompileFailed(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
