package runtime

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/wasm"
)

// Memory is a linear memory instance.
//
// The backing slice is replaced on growth. Callers must re-fetch Bytes after
// anything that may have grown the memory.
type Memory struct {
	data   []byte
	mask   uint64
	max    uint32
	shared bool
}

// NewMemory allocates a memory of minPages pages that may grow to maxPages.
func NewMemory(minPages, maxPages uint32, shared bool) *Memory {
	if maxPages > wasm.MaxPages {
		maxPages = wasm.MaxPages
	}
	m := &Memory{
		data:   make([]byte, uint64(minPages)*wasm.PageSize),
		max:    maxPages,
		shared: shared,
	}
	m.updateMask()
	return m
}

// Bytes returns the current backing buffer.
func (m *Memory) Bytes() []byte {
	return m.data
}

// Mask returns the allocation mask applied to effective addresses: the
// smallest power of two covering the memory, minus one.
func (m *Memory) Mask() uint64 {
	return m.mask
}

// Pages returns the current size in pages.
func (m *Memory) Pages() uint32 {
	return uint32(uint64(len(m.data)) / wasm.PageSize)
}

// MaxPages returns the growth limit in pages.
func (m *Memory) MaxPages() uint32 {
	return m.max
}

// Shared reports whether the memory was declared shared.
func (m *Memory) Shared() bool {
	return m.shared
}

// Size returns the current size in bytes.
func (m *Memory) Size() uint64 {
	return uint64(len(m.data))
}

// Grow adds delta pages. It returns the previous page count, or false if the
// result would exceed the maximum.
func (m *Memory) Grow(delta uint32) (uint32, bool) {
	prev := m.Pages()
	if uint64(prev)+uint64(delta) > uint64(m.max) {
		return prev, false
	}
	if delta == 0 {
		return prev, true
	}
	grown := make([]byte, uint64(prev+delta)*wasm.PageSize)
	copy(grown, m.data)
	m.data = grown
	m.updateMask()
	return prev, true
}

func (m *Memory) updateMask() {
	n := uint64(len(m.data))
	if n == 0 {
		m.mask = 0
		return
	}
	m.mask = 1<<bits.Len64(n-1) - 1
}

func (m *Memory) check(offset uint32, length uint64) error {
	if uint64(offset)+length > uint64(len(m.data)) {
		return fmt.Errorf("memory access out of bounds: offset=%d, length=%d, size=%d", offset, length, len(m.data))
	}
	return nil
}

// Read returns a view of length bytes at offset. The view aliases memory.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	if err := m.check(offset, uint64(length)); err != nil {
		return nil, err
	}
	return m.data[offset : uint64(offset)+uint64(length)], nil
}

// Write copies data into memory at offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint64(len(data))); err != nil {
		return err
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.data[offset], nil
}

func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	if err := m.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[offset:]), nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	if err := m.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

func (m *Memory) WriteU8(offset uint32, value uint8) error {
	if err := m.check(offset, 1); err != nil {
		return err
	}
	m.data[offset] = value
	return nil
}

func (m *Memory) WriteU16(offset uint32, value uint16) error {
	if err := m.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[offset:], value)
	return nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	return nil
}

func (m *Memory) WriteU64(offset uint32, value uint64) error {
	if err := m.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[offset:], value)
	return nil
}

var _ wasminterp.Memory = (*Memory)(nil)
