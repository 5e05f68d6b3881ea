package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode      Phase = "decode"      // binary to module description
	PhaseLoad        Phase = "load"        // reading module files
	PhaseInstantiate Phase = "instantiate" // building a live instance
	PhaseCompile     Phase = "compile"     // control-transfer table construction
	PhaseRuntime     Phase = "runtime"     // interpreter execution
	PhaseHost        Phase = "host"        // host function registration and calls
	PhaseConfig      Phase = "config"      // configuration loading
	PhaseTrace       Phase = "trace"       // trace encoding and decoding
	PhaseEngine      Phase = "engine"      // alternate backend
)

// Kind categorizes the error
type Kind string

const (
	KindTrap          Kind = "trap"
	KindMalformed     Kind = "malformed"
	KindUnwound       Kind = "unwound"
	KindState         Kind = "invalid_state"
	KindTypeMismatch  Kind = "type_mismatch"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindInvalidData   Kind = "invalid_data"
	KindUnsupported   Kind = "unsupported"
	KindOverflow      Kind = "overflow"
	KindMissingImport Kind = "missing_import"
	KindNotFound      Kind = "not_found"
	KindInvalidInput  Kind = "invalid_input"
)

// Location identifies an instruction inside a function body.
type Location struct {
	Func uint32
	PC   int
}

func (l Location) String() string {
	return fmt.Sprintf("func %d pc %d", l.Func, l.PC)
}

// Error is the structured error type used throughout the interpreter
type Error struct {
	Value  any
	Cause  error
	Loc    *Location
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}
	if e.Loc != nil {
		b.WriteString(" (")
		b.WriteString(e.Loc.String())
		b.WriteByte(')')
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by phase and kind
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

// Path sets the item path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// At sets the code location
func (b *Builder) At(fn uint32, pc int) *Builder {
	b.err.Loc = &Location{Func: fn, PC: pc}
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Sentinels for errors.Is matching by phase and kind.
var (
	ErrTrap      = &Error{Phase: PhaseRuntime, Kind: KindTrap}
	ErrUnwound   = &Error{Phase: PhaseRuntime, Kind: KindUnwound}
	ErrMalformed = &Error{Phase: PhaseCompile, Kind: KindMalformed}
)

// Trap creates a trap error. reason is the interpreter's trap reason value.
func Trap(reason fmt.Stringer, fn uint32, pc int) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTrap,
		Loc:    &Location{Func: fn, PC: pc},
		Detail: reason.String(),
		Value:  reason,
	}
}

// Malformed creates a fatal code construction error
func Malformed(fn uint32, pc int, detail string, args ...any) *Error {
	return New(PhaseCompile, KindMalformed).At(fn, pc).Detail(detail, args...).Build()
}

// Unwound reports an activation unwound by a host failure
func Unwound(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindUnwound,
		Detail: "activation unwound",
		Cause:  cause,
	}
}

// InvalidState creates an error for an operation issued in the wrong thread state
func InvalidState(detail string, args ...any) *Error {
	return New(PhaseRuntime, KindState).Detail(detail, args...).Build()
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingImport reports an import with no registered host definition
func MissingImport(module, name string) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindMissingImport,
		Path:   []string{module, name},
		Detail: "no host definition registered",
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
