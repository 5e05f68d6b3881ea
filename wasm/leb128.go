package wasm

import "errors"

// LEB128 helpers over byte slices. The interpreter decodes immediates in place,
// so these return the number of bytes consumed instead of advancing a reader.

// Decoding errors.
var (
	ErrOverflow  = errors.New("leb128: overflow")
	ErrTruncated = errors.New("leb128: truncated")
)

// DecodeU32 decodes an unsigned LEB128 u32 from the start of b.
func DecodeU32(b []byte) (uint32, int, error) {
	v, n, err := DecodeU64(b)
	if err != nil {
		return 0, 0, err
	}
	if v > 0xFFFFFFFF || n > 5 {
		return 0, 0, ErrOverflow
	}
	return uint32(v), n, nil
}

// DecodeU64 decodes an unsigned LEB128 u64 from the start of b.
func DecodeU64(b []byte) (uint64, int, error) {
	var result uint64
	var shift uint
	for i, c := range b {
		if shift >= 64 {
			return 0, 0, ErrOverflow
		}
		result |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrTruncated
}

// DecodeS32 decodes a signed LEB128 s32 from the start of b.
func DecodeS32(b []byte) (int32, int, error) {
	v, n, err := DecodeS64(b)
	if err != nil {
		return 0, 0, err
	}
	if v < -1<<31 || v > 1<<31-1 || n > 5 {
		return 0, 0, ErrOverflow
	}
	return int32(v), n, nil
}

// DecodeS64 decodes a signed LEB128 s64 (also used for s33 block types).
func DecodeS64(b []byte) (int64, int, error) {
	var result int64
	var shift uint
	for i, c := range b {
		if shift >= 64 {
			return 0, 0, ErrOverflow
		}
		result |= int64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			if shift < 64 && c&0x40 != 0 {
				result |= -1 << shift
			}
			return result, i + 1, nil
		}
	}
	return 0, 0, ErrTruncated
}

// AppendU32 appends v as unsigned LEB128.
func AppendU32(dst []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(dst, c)
		}
		dst = append(dst, c|0x80)
	}
}

// AppendS64 appends v as signed LEB128.
func AppendS64(dst []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(dst, c)
		}
		dst = append(dst, c|0x80)
	}
}

// AppendS32 appends v as signed LEB128.
func AppendS32(dst []byte, v int32) []byte {
	return AppendS64(dst, int64(v))
}
