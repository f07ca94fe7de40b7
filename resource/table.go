package resource

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrClosed      = errors.New("resource table closed")
	ErrStaleHandle = errors.New("stale or invalid handle")
)

// Table stores values of one type behind generation-checked handles.
// It is safe for concurrent use.
type Table[T any] struct {
	name      string
	entries   []entry[T]
	freeList  []uint32
	observers []Observer
	live      int
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry[T any] struct {
	value T
	gen   uint32
	valid bool
}

// NewTable creates an empty table. name appears in errors and events.
func NewTable[T any](name string) *Table[T] {
	return &Table[T]{
		name:     name,
		entries:  make([]entry[T], 0, 16),
		freeList: make([]uint32, 0, 8),
	}
}

// Name returns the table name.
func (t *Table[T]) Name() string {
	return t.name
}

// Insert stores value and returns its handle.
func (t *Table[T]) Insert(value T) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}

	var slot uint32
	if n := len(t.freeList); n > 0 {
		slot = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
	} else {
		t.entries = append(t.entries, entry[T]{})
		slot = uint32(len(t.entries) - 1)
	}

	e := &t.entries[slot]
	e.gen++
	e.value = value
	e.valid = true
	t.live++
	h := makeHandle(slot, e.gen)
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Table: t.name, Handle: h, Value: value})
	return h, nil
}

// Get returns the value behind h.
func (t *Table[T]) Get(h Handle) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, err := t.lookup(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return e.value, nil
}

// Remove invalidates h and returns the value it referred to.
func (t *Table[T]) Remove(h Handle) (T, error) {
	t.mu.Lock()
	e, err := t.lookup(h)
	if err != nil {
		t.mu.Unlock()
		var zero T
		return zero, err
	}

	value := e.value
	var zero T
	e.value = zero
	e.valid = false
	slot, _ := h.slot()
	t.freeList = append(t.freeList, slot)
	t.live--
	t.mu.Unlock()

	t.notify(Event{Type: EventDropped, Table: t.name, Handle: h, Value: value})
	return value, nil
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Each calls fn for every live handle until fn returns false.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.mu.RLock()
	type item struct {
		h Handle
		v T
	}
	items := make([]item, 0, t.live)
	for i := range t.entries {
		e := &t.entries[i]
		if e.valid {
			items = append(items, item{makeHandle(uint32(i), e.gen), e.value})
		}
	}
	t.mu.RUnlock()

	for _, it := range items {
		if !fn(it.h, it.v) {
			return
		}
	}
}

// Close stops accepting inserts. Existing handles stay readable so owners
// can still be released in order.
func (t *Table[T]) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Subscribe adds an observer for lifecycle events.
func (t *Table[T]) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

func (t *Table[T]) lookup(h Handle) (*entry[T], error) {
	slot, ok := h.slot()
	if !ok || int(slot) >= len(t.entries) {
		return nil, fmt.Errorf("%s %s: %w", t.name, h, ErrStaleHandle)
	}
	e := &t.entries[slot]
	if !e.valid || e.gen != h.generation() {
		return nil, fmt.Errorf("%s %s: %w", t.name, h, ErrStaleHandle)
	}
	return e, nil
}

func (t *Table[T]) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
