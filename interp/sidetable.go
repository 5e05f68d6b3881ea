package interp

import (
	"fmt"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

// ControlTransfer is the resolved effect of one branch site: advance pc by
// PCDiff, keep the top Arity operands and discard SPDiff operands below the
// current top.
type ControlTransfer struct {
	PCDiff int
	SPDiff int
	Arity  int
}

// SideTable maps branch-site byte offsets to their control transfers. It is
// immutable once built.
//
// Keys are the offsets of br, br_if, if and else instructions. A br_table at
// pc owns the keys pc+0 through pc+n, one per target including the default.
type SideTable struct {
	transfers map[int]ControlTransfer

	// MaxStackHeight is the largest operand stack height reached by the body,
	// excluding parameters and locals.
	MaxStackHeight int
}

// Lookup returns the transfer for the branch site at pc. A miss means the
// table was built from a different body.
func (s *SideTable) Lookup(pc int) ControlTransfer {
	ct, ok := s.transfers[pc]
	if !ok {
		panic(fmt.Sprintf("interp: no control transfer at pc %d", pc))
	}
	return ct
}

// Transfer returns the transfer for pc if one exists.
func (s *SideTable) Transfer(pc int) (ControlTransfer, bool) {
	ct, ok := s.transfers[pc]
	return ct, ok
}

// Len returns the number of entries.
func (s *SideTable) Len() int {
	return len(s.transfers)
}

type labelRef struct {
	from   int
	height int
}

type label struct {
	refs   []labelRef
	height int // operand height at the target, below the carried values
	arity  int
	target int // -1 until bound
}

func newLabel(height, arity int) *label {
	return &label{height: height, arity: arity, target: -1}
}

func (l *label) ref(from, height int) {
	l.refs = append(l.refs, labelRef{from: from, height: height})
}

func (l *label) bind(pc int) {
	l.target = pc
}

func (l *label) finish(fn uint32, out map[int]ControlTransfer) error {
	for _, r := range l.refs {
		if r.height < l.height+l.arity {
			return errors.Malformed(fn, r.from,
				"branch carries %d operands, target needs %d", r.height-l.height, l.arity)
		}
		out[r.from] = ControlTransfer{
			PCDiff: l.target - r.from,
			SPDiff: r.height - l.height,
			Arity:  l.arity,
		}
	}
	l.refs = nil
	return nil
}

type control struct {
	end         *label
	elseLabel   *label // only for if, until else or end
	pc          int
	inArity     int
	exitArity   int
	unreachable bool
}

// ComputeControlTransfers scans a function body once and resolves every
// structured branch to a ControlTransfer. body is the instruction sequence
// terminated by the function's end. fn is only used in error locations.
//
// Returned errors are malformed-code errors: operand underflow, unbalanced
// blocks, undecodable or unsupported instructions.
func ComputeControlTransfers(m *wasm.Module, fn uint32, ft *wasm.FuncType, body []byte) (*SideTable, error) {
	st := &SideTable{transfers: make(map[int]ControlTransfer)}
	height := 0
	stack := []control{{
		pc:        -1,
		end:       newLabel(0, len(ft.Results)),
		exitArity: len(ft.Results),
	}}

	for pc := 0; pc < len(body); {
		if len(stack) == 0 {
			return nil, errors.Malformed(fn, pc, "instructions after function end")
		}
		in, err := wasm.DecodeInstruction(body, pc)
		if err != nil {
			return nil, errors.New(errors.PhaseCompile, errors.KindMalformed).
				At(fn, pc).Cause(err).Build()
		}
		pop, push, ok := stackEffect(m, &in)
		if !ok {
			return nil, errors.Malformed(fn, pc, "unsupported instruction %s", in.Name())
		}

		top := &stack[len(stack)-1]
		unreachable := top.unreachable
		if !unreachable {
			if height < pop {
				return nil, errors.Malformed(fn, pc, "%s pops %d operands, stack height is %d",
					in.Name(), pop, height)
			}
			height += push - pop
			st.MaxStackHeight = max(st.MaxStackHeight, height)
		}

		switch in.Opcode {
		case wasm.OpBlock, wasm.OpLoop:
			params, results, err := blockArity(m, in.Imm.BlockType)
			if err != nil {
				return nil, errors.Malformed(fn, pc, "%v", err)
			}
			c := control{pc: pc, inArity: params, exitArity: results, unreachable: unreachable}
			if in.Opcode == wasm.OpLoop {
				c.end = newLabel(max(height-params, 0), params)
				c.end.bind(pc)
			} else {
				c.end = newLabel(max(height-params, 0), results)
			}
			stack = append(stack, c)

		case wasm.OpIf:
			params, results, err := blockArity(m, in.Imm.BlockType)
			if err != nil {
				return nil, errors.Malformed(fn, pc, "%v", err)
			}
			c := control{
				pc:          pc,
				end:         newLabel(max(height-params, 0), results),
				elseLabel:   newLabel(height, 0),
				inArity:     params,
				exitArity:   results,
				unreachable: unreachable,
			}
			if !unreachable {
				c.elseLabel.ref(pc, height)
			}
			stack = append(stack, c)

		case wasm.OpElse:
			if len(stack) < 2 || top.elseLabel == nil {
				return nil, errors.Malformed(fn, pc, "else without matching if")
			}
			if !unreachable {
				top.end.ref(pc, height)
			}
			top.elseLabel.bind(pc + 1)
			if err := top.elseLabel.finish(fn, st.transfers); err != nil {
				return nil, err
			}
			top.elseLabel = nil
			top.unreachable = stack[len(stack)-2].unreachable
			height = top.end.height + top.inArity

		case wasm.OpEnd:
			if !unreachable && height < top.end.height+top.exitArity {
				return nil, errors.Malformed(fn, pc, "block leaves %d operands, needs %d",
					height-top.end.height, top.exitArity)
			}
			if top.end.target < 0 {
				if top.elseLabel != nil {
					top.elseLabel.bind(pc)
				}
				top.end.bind(pc + 1)
			}
			if top.elseLabel != nil {
				if err := top.elseLabel.finish(fn, st.transfers); err != nil {
					return nil, err
				}
			}
			if err := top.end.finish(fn, st.transfers); err != nil {
				return nil, err
			}
			height = top.end.height + top.exitArity
			st.MaxStackHeight = max(st.MaxStackHeight, height)
			stack = stack[:len(stack)-1]

		case wasm.OpBr, wasm.OpBrIf:
			target, err := labelAt(stack, in.Imm.Index)
			if err != nil {
				return nil, errors.Malformed(fn, pc, "%v", err)
			}
			if !unreachable {
				target.ref(pc, height)
			}

		case wasm.OpBrTable:
			for j, depth := range in.Imm.Labels {
				target, err := labelAt(stack, depth)
				if err != nil {
					return nil, errors.Malformed(fn, pc, "%v", err)
				}
				if !unreachable {
					target.ref(pc+j, height)
				}
			}
		}

		switch in.Opcode {
		case wasm.OpUnreachable, wasm.OpBr, wasm.OpBrTable, wasm.OpReturn:
			stack[len(stack)-1].unreachable = true
		}
		pc += in.Len
	}

	if len(stack) != 0 {
		return nil, errors.Malformed(fn, len(body), "%d blocks left open", len(stack))
	}
	return st, nil
}

func labelAt(stack []control, depth uint32) (*label, error) {
	if int(depth) >= len(stack) {
		return nil, fmt.Errorf("branch depth %d exceeds %d open blocks", depth, len(stack))
	}
	return stack[len(stack)-1-int(depth)].end, nil
}

// blockArity returns the parameter and result counts of a block type.
func blockArity(m *wasm.Module, bt int64) (params, results int, err error) {
	switch {
	case bt == wasm.BlockTypeVoid:
		return 0, 0, nil
	case bt < 0:
		return 0, 1, nil
	case int(bt) < len(m.Types):
		ft := &m.Types[bt]
		return len(ft.Params), len(ft.Results), nil
	}
	return 0, 0, fmt.Errorf("block type index %d out of range", bt)
}
