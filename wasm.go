package wasmembed

// Memory is a bounds-checked view of an instance's linear memory. Adapters
// lower arguments into it and lift results out of it. Every accessor fails
// with an out-of-bounds error instead of panicking.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
	// Size returns the current size in bytes.
	Size() uint32
}

// Allocator hands out guest buffers for adapter arguments. Alloc never
// returns 0 for a non-zero size. Free is best effort: buffers whose
// ownership passed to the guest are never freed by the host.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}
