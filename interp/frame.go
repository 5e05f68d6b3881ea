package interp

// Frame is a read-only view of one interpreter frame for debuggers. It is
// valid until the thread runs again.
type Frame struct {
	t   *Thread
	idx int
}

// FrameCount returns the number of frames on the thread, across all
// activations.
func (t *Thread) FrameCount() int {
	return len(t.frames)
}

// Frame returns frame i, counting from the bottom of the frame stack.
func (t *Thread) Frame(i int) (Frame, bool) {
	if i < 0 || i >= len(t.frames) {
		return Frame{}, false
	}
	return Frame{t: t, idx: i}, true
}

// TopFrame returns the innermost frame.
func (t *Thread) TopFrame() (Frame, bool) {
	return t.Frame(len(t.frames) - 1)
}

func (f Frame) raw() *frame {
	return &f.t.frames[f.idx]
}

// Function returns the function index.
func (f Frame) Function() uint32 {
	return f.raw().code.Func
}

// PC returns the byte offset of the current instruction, or of the pending
// call for frames below the top.
func (f Frame) PC() int {
	return f.raw().pc
}

// ParamCount returns the number of parameters.
func (f Frame) ParamCount() int {
	return len(f.raw().code.Type.Params)
}

// LocalCount returns parameters plus declared locals.
func (f Frame) LocalCount() int {
	return f.raw().code.NumLocals()
}

// StackHeight returns the number of operands above the locals.
func (f Frame) StackHeight() int {
	limit := len(f.t.stack)
	if f.idx+1 < len(f.t.frames) {
		limit = f.t.frames[f.idx+1].sp
	}
	return limit - f.raw().localsEnd()
}

// Local returns parameter or local i.
func (f Frame) Local(i int) Value {
	return f.t.stack[f.raw().sp+i]
}

// Stack returns operand i, counting from the bottom of the frame's operand
// stack.
func (f Frame) Stack(i int) Value {
	return f.t.stack[f.raw().localsEnd()+i]
}

// Code returns the function's cached code.
func (f Frame) Code() *Code {
	return f.raw().code
}
