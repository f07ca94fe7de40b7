package binary

// AppendU32 appends v as unsigned LEB128.
func AppendU32(dst []byte, v uint32) []byte {
	return AppendU64(dst, uint64(v))
}

// AppendU64 appends v as unsigned LEB128.
func AppendU64(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if v == 0 {
			return dst
		}
	}
}

// AppendS64 appends v as signed LEB128.
func AppendS64(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		dst = append(dst, b)
		if done {
			return dst
		}
	}
}

// AppendName appends a length-prefixed name.
func AppendName(dst []byte, name string) []byte {
	dst = AppendU32(dst, uint32(len(name)))
	return append(dst, name...)
}

// AppendSection appends a section with its id and size prefix.
func AppendSection(dst []byte, id byte, payload []byte) []byte {
	dst = append(dst, id)
	dst = AppendU32(dst, uint32(len(payload)))
	return append(dst, payload...)
}
