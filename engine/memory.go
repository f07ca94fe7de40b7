package engine

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	wasmembed "github.com/wippyai/wasm-embed"
)

// guestMemory wraps runtime memory to implement wasmembed.Memory
type guestMemory struct {
	mem api.Memory
}

func (m *guestMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *guestMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *guestMemory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d, length=1", offset)
	}
	return v, nil
}

func (m *guestMemory) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d, length=2", offset)
	}
	return v, nil
}

func (m *guestMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d, length=4", offset)
	}
	return v, nil
}

func (m *guestMemory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d, length=8", offset)
	}
	return v, nil
}

func (m *guestMemory) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return fmt.Errorf("write out of bounds: offset=%d, length=1", offset)
	}
	return nil
}

func (m *guestMemory) WriteU16(offset uint32, value uint16) error {
	if !m.mem.WriteUint16Le(offset, value) {
		return fmt.Errorf("write out of bounds: offset=%d, length=2", offset)
	}
	return nil
}

func (m *guestMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("write out of bounds: offset=%d, length=4", offset)
	}
	return nil
}

func (m *guestMemory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("write out of bounds: offset=%d, length=8", offset)
	}
	return nil
}

func (m *guestMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

var _ wasmembed.Memory = (*guestMemory)(nil)
