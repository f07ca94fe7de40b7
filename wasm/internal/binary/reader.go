package binary

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

var (
	// ErrOverflow is returned when a LEB128 value exceeds its bit width.
	ErrOverflow = errors.New("leb128: overflow")
	// ErrInvalidUTF8 is returned when a name is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid UTF-8 name")
)

// Reader reads WebAssembly binary primitives from a byte slice with
// position tracking.
type Reader struct {
	data []byte
	pos  int
	base int
}

// NewReader creates a Reader over data. base is added to positions in
// errors so nested readers report absolute offsets.
func NewReader(data []byte, base int) *Reader {
	return &Reader{data: data, base: base}
}

// Position returns the absolute byte position.
func (r *Reader) Position() int {
	return r.base + r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.pos
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes returns the next n bytes without copying.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances past n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.ReadBytes(n)
	return err
}

// ReadU32 reads an unsigned LEB128 encoded uint32.
func (r *Reader) ReadU32() (uint32, error) {
	v, err := r.readUnsigned(32)
	return uint32(v), err
}

// ReadU64 reads an unsigned LEB128 encoded uint64.
func (r *Reader) ReadU64() (uint64, error) {
	return r.readUnsigned(64)
}

// ReadS32 reads a signed LEB128 encoded int32.
func (r *Reader) ReadS32() (int32, error) {
	v, err := r.readSigned(32)
	return int32(v), err
}

// ReadS64 reads a signed LEB128 encoded int64.
func (r *Reader) ReadS64() (int64, error) {
	return r.readSigned(64)
}

// ReadU32LE reads a little-endian fixed-width uint32.
func (r *Reader) ReadU32LE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// ReadName reads a length-prefixed UTF-8 name.
func (r *Reader) ReadName() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// WrapError annotates err with the current position and context.
func (r *Reader) WrapError(context string, err error) error {
	return fmt.Errorf("%s at offset %d: %w", context, r.Position(), err)
}

func (r *Reader) readUnsigned(bits uint) (uint64, error) {
	maxBytes := int((bits + 6) / 7)
	var result uint64
	var shift uint
	for i := 0; i < maxBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if i == maxBytes-1 && bits-shift < 7 && b>>(bits-shift) != 0 {
			return 0, ErrOverflow
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, ErrOverflow
}

func (r *Reader) readSigned(bits uint) (int64, error) {
	maxBytes := int((bits + 6) / 7)
	var result int64
	var shift uint
	for i := 0; i < maxBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if i == maxBytes-1 {
			if b&0x80 != 0 {
				return 0, ErrOverflow
			}
			if remaining := bits - shift; remaining < 7 {
				high := (b & 0x7f) >> (remaining - 1)
				if high != 0 && high != 0x7f>>(remaining-1) {
					return 0, ErrOverflow
				}
			}
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
	return 0, ErrOverflow
}
