package resource

import "fmt"

// Handle is an opaque reference to a value in a Table.
//
// The low 32 bits hold the slot index plus one, the high 32 bits hold the
// slot generation. Handle 0 is reserved and always invalid. A handle whose
// slot was released and reused no longer matches the slot's generation, so
// stale handles are rejected instead of aliasing a newer value.
type Handle uint64

func makeHandle(slot, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(slot+1))
}

func (h Handle) slot() (uint32, bool) {
	idx := uint32(h)
	if idx == 0 {
		return 0, false
	}
	return idx - 1, true
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

func (h Handle) String() string {
	if h == 0 {
		return "handle(nil)"
	}
	return fmt.Sprintf("handle(%d#%d)", uint32(h), h.generation())
}

// EventType identifies a table lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	}
	return "unknown"
}

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Table  string
	Handle Handle
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }
