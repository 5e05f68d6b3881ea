package interp

// TrapReason identifies why execution trapped.
type TrapReason uint8

const (
	TrapNone TrapReason = iota
	TrapUnreachable
	TrapMemOutOfBounds
	TrapUnalignedAtomic
	TrapDivByZero
	TrapDivUnrepresentable
	TrapRemByZero
	TrapFloatUnrepresentable
	TrapFuncInvalid
	TrapFuncSigMismatch
	TrapStackOverflow
	TrapWaitOnUnshared
)

var trapMessages = [...]string{
	TrapNone:                 "no trap",
	TrapUnreachable:          "unreachable",
	TrapMemOutOfBounds:       "memory access out of bounds",
	TrapUnalignedAtomic:      "unaligned atomic access",
	TrapDivByZero:            "integer divide by zero",
	TrapDivUnrepresentable:   "integer overflow",
	TrapRemByZero:            "integer remainder by zero",
	TrapFloatUnrepresentable: "invalid conversion to integer",
	TrapFuncInvalid:          "invalid table index",
	TrapFuncSigMismatch:      "indirect call signature mismatch",
	TrapStackOverflow:        "call stack exhausted",
	TrapWaitOnUnshared:       "atomic wait on unshared memory",
}

func (r TrapReason) String() string {
	if int(r) < len(trapMessages) {
		return trapMessages[r]
	}
	return "unknown trap"
}

// State is the run state of a Thread.
type State uint8

const (
	StateStopped State = iota
	StateRunning
	StatePaused
	StateFinished
	StateTrapped
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateTrapped:
		return "trapped"
	default:
		return "unknown"
	}
}

// BreakFlag requests a pause after a class of instruction.
type BreakFlag uint8

const (
	BreakNone        BreakFlag = 0
	BreakAfterReturn BreakFlag = 1 << 0
	BreakAfterCall   BreakFlag = 1 << 1
)
