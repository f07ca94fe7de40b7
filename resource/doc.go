// Package resource provides generation-checked handle tables.
//
// The capi package stores every engine object in a Table and hands the
// Handle across the boundary in place of a pointer. Removing a handle
// invalidates it permanently: a second Remove or a Get with the stale handle
// fails with ErrStaleHandle rather than touching whichever value later
// reuses the slot.
//
//	t := resource.NewTable[*engine.Store]("store")
//	h, err := t.Insert(store)
//	s, err := t.Get(h)
//	_, err = t.Remove(h) // ok
//	_, err = t.Remove(h) // ErrStaleHandle
package resource
