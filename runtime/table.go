package runtime

import "github.com/wippyai/wasm-interp/errors"

// NullFunc marks an uninitialized table slot.
const NullFunc = ^uint32(0)

// Table is a funcref table holding function indices of the owning instance.
type Table struct {
	elems []uint32
	max   *uint64
}

// NewTable creates a table of size null entries.
func NewTable(size uint32, max *uint64) *Table {
	t := &Table{elems: make([]uint32, size), max: max}
	for i := range t.elems {
		t.elems[i] = NullFunc
	}
	return t
}

// Size returns the number of slots.
func (t *Table) Size() uint32 {
	return uint32(len(t.elems))
}

// Get returns the function index at slot i. ok is false for null slots.
// The caller bounds-checks i against Size.
func (t *Table) Get(i uint32) (funcIdx uint32, ok bool) {
	fn := t.elems[i]
	return fn, fn != NullFunc
}

// Set stores a function index at slot i.
func (t *Table) Set(i, funcIdx uint32) error {
	if i >= uint32(len(t.elems)) {
		return errors.OutOfBounds(errors.PhaseInstantiate, []string{"table"}, int(i), len(t.elems))
	}
	t.elems[i] = funcIdx
	return nil
}
