package transcoder

import (
	"sync"

	wasmembed "github.com/wippyai/wasm-embed"
)

type Memory = wasmembed.Memory
type Allocator = wasmembed.Allocator

// Allocation records one guest buffer handed out during a call.
type Allocation struct {
	Ptr   uint32
	Size  uint32
	Align uint32
}

// AllocationList tracks the guest buffers a lowering made so they can be
// returned to the allocator if the call fails.
type AllocationList struct {
	allocations []Allocation
}

var allocationListPool = sync.Pool{
	New: func() any {
		return &AllocationList{allocations: make([]Allocation, 0, 8)}
	},
}

func NewAllocationList() *AllocationList {
	return allocationListPool.Get().(*AllocationList)
}

const maxPooledAllocationCapacity = 128

// Release returns the list to the pool. The list is invalid afterwards.
func (al *AllocationList) Release() {
	if cap(al.allocations) > maxPooledAllocationCapacity {
		return
	}
	al.Reset()
	allocationListPool.Put(al)
}

func (al *AllocationList) Add(ptr, size, align uint32) {
	al.allocations = append(al.allocations, Allocation{
		Ptr:   ptr,
		Size:  size,
		Align: align,
	})
}

// Free hands every recorded buffer back in reverse order and empties the
// list. A nil allocator only empties it.
func (al *AllocationList) Free(allocator Allocator) {
	if allocator != nil {
		for i := len(al.allocations) - 1; i >= 0; i-- {
			a := al.allocations[i]
			if a.Ptr != 0 {
				allocator.Free(a.Ptr, a.Size, a.Align)
			}
		}
	}
	al.Reset()
}

func (al *AllocationList) Reset() {
	al.allocations = al.allocations[:0]
}

func (al *AllocationList) Count() int {
	return len(al.allocations)
}

// Bytes returns the total size of the recorded buffers.
func (al *AllocationList) Bytes() uint64 {
	var n uint64
	for _, a := range al.allocations {
		n += uint64(a.Size)
	}
	return n
}
