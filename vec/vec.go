package vec

import (
	"sync/atomic"

	"github.com/wippyai/wasm-embed/errors"
)

var live atomic.Int64

// Live returns the number of vectors that are owned and not yet deleted.
func Live() int64 {
	return live.Load()
}

// Vec is an owned sequence of T. The zero value is an empty, unowned vector
// usable as an out parameter for Into.
type Vec[T any] struct {
	data    []T
	owned   bool
	deleted bool
}

// ByteVec is the byte vector used for binaries, text and messages.
type ByteVec = Vec[byte]

// NewEmpty returns an owned vector of length zero.
func NewEmpty[T any]() *Vec[T] {
	v := &Vec[T]{}
	v.own(nil)
	return v
}

// NewUninitialized returns an owned vector of length n with zeroed contents.
func NewUninitialized[T any](n int) *Vec[T] {
	v := &Vec[T]{}
	if n > 0 {
		v.own(make([]T, n))
	} else {
		v.own(nil)
	}
	return v
}

// New returns an owned vector holding a copy of src.
func New[T any](src []T) *Vec[T] {
	v := &Vec[T]{}
	v.own(clone(src))
	return v
}

// FromString returns an owned byte vector holding the bytes of s.
func FromString(s string) *ByteVec {
	v := &ByteVec{}
	if len(s) > 0 {
		v.own([]byte(s))
	} else {
		v.own(nil)
	}
	return v
}

// Into fills the out parameter dst with a copy of src. dst must not be
// currently owned; overwriting a live vector would leak it.
func Into[T any](dst *Vec[T], src []T) error {
	if dst == nil {
		return errors.Contract(errors.PhaseLifecycle, "nil out vector")
	}
	if dst.owned {
		return errors.Contract(errors.PhaseLifecycle, "out vector already owns %d elements", len(dst.data))
	}
	dst.deleted = false
	dst.own(clone(src))
	return nil
}

// Len returns the number of elements.
func (v *Vec[T]) Len() int {
	if v == nil {
		return 0
	}
	return len(v.data)
}

// Data returns a borrowed view of the elements. It is nil iff Len is 0.
func (v *Vec[T]) Data() []T {
	if v == nil || len(v.data) == 0 {
		return nil
	}
	return v.data
}

// Owned reports whether v holds storage that must be deleted.
func (v *Vec[T]) Owned() bool {
	return v != nil && v.owned
}

// Delete releases the vector. A second Delete returns a released error.
func (v *Vec[T]) Delete() error {
	if v == nil {
		return nil
	}
	if v.deleted {
		return errors.Released("vector")
	}
	if !v.owned {
		return errors.Contract(errors.PhaseLifecycle, "delete of unowned vector")
	}
	v.data = nil
	v.owned = false
	v.deleted = true
	live.Add(-1)
	return nil
}

// String returns the contents of a byte vector as a Go string.
func String(v *ByteVec) string {
	return string(v.Data())
}

func (v *Vec[T]) own(data []T) {
	v.data = data
	v.owned = true
	live.Add(1)
}

func clone[T any](src []T) []T {
	if len(src) == 0 {
		return nil
	}
	out := make([]T, len(src))
	copy(out, src)
	return out
}
