package binary

import "encoding/binary"

// Writer accumulates a module binary.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of written bytes.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Byte appends a single byte.
func (w *Writer) Byte(b byte) {
	w.buf = append(w.buf, b)
}

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(data []byte) {
	w.buf = append(w.buf, data...)
}

// WriteU32 appends an unsigned LEB128 u32.
func (w *Writer) WriteU32(v uint32) {
	w.WriteU64(uint64(v))
}

// WriteU64 appends an unsigned LEB128 u64.
func (w *Writer) WriteU64(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf = append(w.buf, b)
		if v == 0 {
			return
		}
	}
}

// WriteS64 appends a signed LEB128 value.
func (w *Writer) WriteS64(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		w.buf = append(w.buf, b)
		if done {
			return
		}
	}
}

// WriteName appends a length-prefixed name.
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteU32LE appends a fixed little-endian u32.
func (w *Writer) WriteU32LE(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}
