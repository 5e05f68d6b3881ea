package interp

// TraceKind classifies trace events.
type TraceKind uint8

const (
	TraceStep TraceKind = iota
	TraceCall
	TraceReturn
	TraceHostCall
	TraceTrap
	TraceBreak
)

func (k TraceKind) String() string {
	switch k {
	case TraceStep:
		return "step"
	case TraceCall:
		return "call"
	case TraceReturn:
		return "return"
	case TraceHostCall:
		return "host"
	case TraceTrap:
		return "trap"
	case TraceBreak:
		return "break"
	default:
		return "unknown"
	}
}

// TraceEvent describes one observable interpreter event. For steps it is
// emitted before the instruction executes.
type TraceEvent struct {
	Kind   TraceKind
	Func   uint32
	PC     int
	Opcode byte
	Depth  int // frame count
	Height int // operand stack height of the current frame
	Trap   TrapReason
}

// Tracer observes execution. Implementations must not call back into the
// thread.
type Tracer interface {
	Trace(ev TraceEvent)
}
