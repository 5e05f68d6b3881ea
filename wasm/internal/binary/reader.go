package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrOverflow is returned when a LEB128 value exceeds the maximum size.
var ErrOverflow = errors.New("leb128: overflow")

// Reader is a cursor over an in-memory module binary.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the current byte offset.
func (r *Reader) Position() int {
	return r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.pos
}

// Reset moves the cursor to pos.
func (r *Reader) Reset(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return io.ErrUnexpectedEOF
	}
	r.pos = pos
	return nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes. The result aliases the input.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadU32 reads an unsigned LEB128 u32.
func (r *Reader) ReadU32() (uint32, error) {
	v, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, ErrOverflow
	}
	return uint32(v), nil
}

// ReadU64 reads an unsigned LEB128 u64.
func (r *Reader) ReadU64() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, io.ErrUnexpectedEOF
		}
		if shift >= 64 {
			return 0, ErrOverflow
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// ReadS32 reads a signed LEB128 s32.
func (r *Reader) ReadS32() (int32, error) {
	v, err := r.ReadS64()
	if err != nil {
		return 0, err
	}
	if v < -1<<31 || v > 1<<31-1 {
		return 0, ErrOverflow
	}
	return int32(v), nil
}

// ReadS64 reads a signed LEB128 s64.
func (r *Reader) ReadS64() (int64, error) {
	var result int64
	var shift uint
	var b byte
	for {
		var err error
		b, err = r.ReadByte()
		if err != nil {
			return 0, io.ErrUnexpectedEOF
		}
		if shift >= 64 {
			return 0, ErrOverflow
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
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
		return "", errors.New("invalid UTF-8 in name")
	}
	return string(b), nil
}

// ReadU32LE reads a fixed little-endian u32.
func (r *Reader) ReadU32LE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ParseError records where in the binary decoding failed.
type ParseError struct {
	Cause   error
	Section string
	Offset  int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at offset %d: %v", e.Section, e.Offset, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// WrapError attaches the current offset and section name to err.
func (r *Reader) WrapError(section string, err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return err
	}
	return &ParseError{Section: section, Offset: r.pos, Cause: err}
}
