package interp

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

// Code is the cached executable view of one function.
type Code struct {
	Type   *wasm.FuncType
	Side   *SideTable
	Locals []wasm.ValType // declared locals, parameters excluded

	// Orig is the instruction sequence as decoded from the module. Body is
	// the sequence the thread dispatches on; it aliases Orig until a
	// breakpoint is armed, then it is a private copy carrying breakpoint
	// markers over the original opcodes.
	Orig []byte
	Body []byte

	Func     uint32
	Imported bool

	digest [32]byte
}

// NumLocals returns parameters plus declared locals.
func (c *Code) NumLocals() int {
	return len(c.Type.Params) + len(c.Locals)
}

// CodeMap owns the cached Code of every function of a module. Side tables
// are built on first use. Functions with identical signature, locals and
// body share one side table.
type CodeMap struct {
	module *wasm.Module
	log    *zap.Logger
	codes  []*Code
	shared map[[32]byte]*SideTable
	mu     sync.Mutex
}

// NewCodeMap creates a code map over a module.
func NewCodeMap(m *wasm.Module, log *zap.Logger) *CodeMap {
	if log == nil {
		log = zap.NewNop()
	}
	cm := &CodeMap{
		module: m,
		log:    log,
		codes:  make([]*Code, m.NumFuncs()),
		shared: make(map[[32]byte]*SideTable),
	}
	imported := m.NumImportedFuncs()
	for i := range cm.codes {
		c := &Code{Func: uint32(i), Type: m.GetFuncType(uint32(i))}
		if i < imported {
			c.Imported = true
		} else {
			body := &m.Code[i-imported]
			c.Locals = body.ExpandLocals()
			c.Orig = body.Code
			c.Body = body.Code
		}
		cm.codes[i] = c
	}
	return cm
}

// Module returns the module the map was built from.
func (cm *CodeMap) Module() *wasm.Module {
	return cm.module
}

// NumFunctions returns the size of the function index space.
func (cm *CodeMap) NumFunctions() int {
	return len(cm.codes)
}

// Get returns the code of a function, building its side table on first use.
// Imported functions are returned without a side table.
func (cm *CodeMap) Get(funcIdx uint32) (*Code, error) {
	if int(funcIdx) >= len(cm.codes) {
		return nil, errors.NotFound(errors.PhaseCompile, "function", fmt.Sprint(funcIdx))
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	c := cm.codes[funcIdx]
	if !c.Imported && c.Side == nil {
		if err := cm.prepare(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (cm *CodeMap) prepare(c *Code) error {
	if c.Type == nil {
		return errors.Malformed(c.Func, 0, "function has no signature")
	}
	c.digest = codeDigest(c)
	if st, ok := cm.shared[c.digest]; ok {
		c.Side = st
		return nil
	}
	st, err := ComputeControlTransfers(cm.module, c.Func, c.Type, c.Orig)
	if err != nil {
		return err
	}
	cm.shared[c.digest] = st
	c.Side = st
	cm.log.Debug("side table built",
		zap.Uint32("func", c.Func),
		zap.Int("entries", st.Len()),
		zap.Int("max_height", st.MaxStackHeight))
	return nil
}

// SetFunctionCode replaces a defined function's body. The side table is
// rebuilt on next use; breakpoints on the old body are dropped. Threads
// with frames in the function must be reset first.
func (cm *CodeMap) SetFunctionCode(funcIdx uint32, body wasm.FuncBody) error {
	if int(funcIdx) >= len(cm.codes) {
		return errors.NotFound(errors.PhaseCompile, "function", fmt.Sprint(funcIdx))
	}
	if len(body.Code) == 0 || body.Code[len(body.Code)-1] != wasm.OpEnd {
		return errors.Malformed(funcIdx, len(body.Code), "body must end with end")
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	c := cm.codes[funcIdx]
	if c.Imported {
		return errors.InvalidInput(errors.PhaseCompile, "cannot replace the body of an imported function")
	}
	next := &Code{
		Func:   funcIdx,
		Type:   c.Type,
		Locals: body.ExpandLocals(),
		Orig:   body.Code,
		Body:   body.Code,
	}
	if codeDigest(next) == c.digest && c.Side != nil {
		next.Side = c.Side
		next.digest = c.digest
	}
	cm.codes[funcIdx] = next
	return nil
}

// SetBreakpoint arms or disarms a breakpoint at an instruction offset and
// returns the previous setting.
func (cm *CodeMap) SetBreakpoint(funcIdx uint32, pc int, enabled bool) (bool, error) {
	c, err := cm.Get(funcIdx)
	if err != nil {
		return false, err
	}
	if c.Imported {
		return false, errors.InvalidInput(errors.PhaseCompile, "cannot set a breakpoint in an imported function")
	}
	if !isInstructionStart(c.Orig, pc) {
		return false, errors.New(errors.PhaseCompile, errors.KindInvalidInput).
			At(funcIdx, pc).Detail("not an instruction boundary").Build()
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	prev := c.Body[pc] == wasm.OpBreakpoint
	if prev == enabled {
		return prev, nil
	}
	if enabled {
		if &c.Body[0] == &c.Orig[0] {
			c.Body = slices.Clone(c.Orig)
		}
		c.Body[pc] = wasm.OpBreakpoint
	} else {
		c.Body[pc] = c.Orig[pc]
	}
	return prev, nil
}

// GetBreakpoint reports whether a breakpoint is armed at pc.
func (cm *CodeMap) GetBreakpoint(funcIdx uint32, pc int) bool {
	if int(funcIdx) >= len(cm.codes) {
		return false
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	c := cm.codes[funcIdx]
	if c.Imported || pc < 0 || pc >= len(c.Body) {
		return false
	}
	return c.Body[pc] == wasm.OpBreakpoint
}

func isInstructionStart(code []byte, pc int) bool {
	for off := 0; off < len(code); {
		if off == pc {
			return true
		}
		if off > pc {
			return false
		}
		in, err := wasm.DecodeInstruction(code, off)
		if err != nil {
			return false
		}
		off += in.Len
	}
	return false
}

// codeDigest hashes everything a side table depends on.
func codeDigest(c *Code) [32]byte {
	h := blake3.New()
	var buf [binary.MaxVarintLen64]byte
	writeTypes := func(ts []wasm.ValType) {
		n := binary.PutUvarint(buf[:], uint64(len(ts)))
		_, _ = h.Write(buf[:n])
		for _, t := range ts {
			_, _ = h.Write([]byte{byte(t)})
		}
	}
	writeTypes(c.Type.Params)
	writeTypes(c.Type.Results)
	writeTypes(c.Locals)
	_, _ = h.Write(c.Orig)
	var d [32]byte
	h.Sum(d[:0])
	return d
}
