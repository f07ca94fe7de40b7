package transcoder

import (
	"encoding/binary"
	"fmt"
)

// mockMemory implements Memory over a byte slice
type mockMemory struct {
	data []byte
}

func newMockMemory(size int) *mockMemory {
	return &mockMemory{data: make([]byte, size)}
}

func (m *mockMemory) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return fmt.Errorf("access [%d, %d) out of range", offset, uint64(offset)+uint64(length))
	}
	return nil
}

func (m *mockMemory) Read(offset uint32, length uint32) ([]byte, error) {
	if err := m.check(offset, length); err != nil {
		return nil, err
	}
	return m.data[offset : offset+length], nil
}

func (m *mockMemory) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *mockMemory) ReadU8(offset uint32) (uint8, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.data[offset], nil
}

func (m *mockMemory) ReadU16(offset uint32) (uint16, error) {
	if err := m.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[offset:]), nil
}

func (m *mockMemory) ReadU32(offset uint32) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

func (m *mockMemory) ReadU64(offset uint32) (uint64, error) {
	if err := m.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

func (m *mockMemory) WriteU8(offset uint32, value uint8) error {
	if err := m.check(offset, 1); err != nil {
		return err
	}
	m.data[offset] = value
	return nil
}

func (m *mockMemory) WriteU16(offset uint32, value uint16) error {
	if err := m.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[offset:], value)
	return nil
}

func (m *mockMemory) WriteU32(offset uint32, value uint32) error {
	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	return nil
}

func (m *mockMemory) WriteU64(offset uint32, value uint64) error {
	if err := m.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[offset:], value)
	return nil
}

func (m *mockMemory) Size() uint32 {
	return uint32(len(m.data))
}

// mockAllocator is a bump allocator that records frees
type mockAllocator struct {
	mem    *mockMemory
	freed  []uint32
	offset uint32
	fail   bool
}

func newMockAllocator(mem *mockMemory) *mockAllocator {
	return &mockAllocator{offset: 1024, mem: mem} // start at 1024 to test non-zero offsets
}

func (a *mockAllocator) Alloc(size, align uint32) (uint32, error) {
	if a.fail {
		return 0, fmt.Errorf("allocator disabled")
	}
	if align == 0 {
		align = 1
	}
	ptr := (a.offset + align - 1) &^ (align - 1)
	if uint64(ptr)+uint64(size) > uint64(len(a.mem.data)) {
		return 0, fmt.Errorf("out of memory: need %d bytes at %d", size, ptr)
	}
	a.offset = ptr + size
	return ptr, nil
}

func (a *mockAllocator) Free(ptr, size, align uint32) {
	a.freed = append(a.freed, ptr)
}
