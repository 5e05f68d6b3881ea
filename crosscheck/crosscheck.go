// Package crosscheck runs an exported function on the interpreter and on
// wazero and compares the outcomes.
//
// Results are compared bitwise. When the interpreter flagged possible
// nondeterminism, NaN results are accepted regardless of sign and payload,
// since the two backends may legitimately produce different NaN bits.
package crosscheck

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-interp/engine"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/interp"
	"github.com/wippyai/wasm-interp/runtime"
	"github.com/wippyai/wasm-interp/wasm"
)

// Options configures both backends.
type Options struct {
	Interp interp.Config
	Engine *engine.Config
	Logger *zap.Logger
}

// DefaultOptions returns options with the interpreter's default config.
func DefaultOptions() Options {
	return Options{Interp: interp.DefaultConfig()}
}

// OutcomeKind classifies how a call ended.
type OutcomeKind uint8

const (
	Returned OutcomeKind = iota
	Trapped
	Unwound
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Returned:
		return "returned"
	case Trapped:
		return "trapped"
	case Unwound:
		return "unwound"
	default:
		return "failed"
	}
}

// Outcome is the result of one backend.
type Outcome struct {
	Kind    OutcomeKind
	Results []interp.Value
	Err     error
}

func (o Outcome) String() string {
	if o.Kind == Returned {
		parts := make([]string, len(o.Results))
		for i, v := range o.Results {
			parts[i] = v.String()
		}
		return "returned [" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("%s: %v", o.Kind, o.Err)
}

func classify(results []interp.Value, err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Kind: Returned, Results: results}
	case stderrors.Is(err, errors.ErrTrap):
		return Outcome{Kind: Trapped, Err: err}
	case stderrors.Is(err, errors.ErrUnwound):
		return Outcome{Kind: Unwound, Err: err}
	default:
		return Outcome{Kind: Failed, Err: err}
	}
}

// Mismatch is one result that differs between the backends.
type Mismatch struct {
	Index  int
	Interp interp.Value
	Engine interp.Value
}

// Report is the comparison of one call.
type Report struct {
	Export string
	Args   []interp.Value
	Interp Outcome
	Engine Outcome

	// Nondeterministic is set when the interpreter produced a NaN whose
	// bits are not fixed by the semantics.
	Nondeterministic bool

	Mismatches []Mismatch
	Match      bool
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: ", r.Export)
	if r.Match {
		b.WriteString("match")
	} else {
		b.WriteString("MISMATCH")
	}
	if r.Nondeterministic {
		b.WriteString(" (nondeterministic NaN)")
	}
	fmt.Fprintf(&b, "\n  interp: %s\n  wazero: %s", r.Interp, r.Engine)
	for _, m := range r.Mismatches {
		fmt.Fprintf(&b, "\n  result %d: %s != %s", m.Index, m.Interp, m.Engine)
	}
	return b.String()
}

// Run instantiates m once per backend, calls export with args on both and
// compares the outcomes. The error is reserved for setup failures; a
// disagreement is reported through Report.Match.
func Run(ctx context.Context, m *wasm.Module, reg *runtime.HostRegistry, export string, args []interp.Value, opts Options) (*Report, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	fn, ok := m.ExportedFunc(export)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", export)
	}
	ft := m.GetFuncType(fn)
	if ft == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", fmt.Sprint(fn))
	}

	report := &Report{Export: export, Args: args}

	inst, err := runtime.Instantiate(ctx, m, reg)
	if err != nil {
		return nil, err
	}
	it := interp.New(inst, opts.Interp)
	if err := it.RunStart(ctx); err != nil {
		return nil, err
	}
	th := it.NewThread()
	results, err := th.Call(ctx, fn, args...)
	report.Interp = classify(results, err)
	report.Nondeterministic = th.PossibleNondeterminism()
	if report.Interp.Kind == Failed {
		return nil, err
	}

	eng, err := engine.NewWazeroEngineWithConfig(ctx, opts.Engine)
	if err != nil {
		return nil, err
	}
	defer eng.Close(ctx)
	winst, err := eng.Instantiate(ctx, m, reg)
	if err != nil {
		return nil, err
	}
	defer winst.Close(ctx)
	slots, err := winst.Call(ctx, export, interp.ValuesToSlots(args)...)
	var wresults []interp.Value
	if err == nil {
		if len(slots) != slotCount(ft.Results) {
			return nil, errors.New(errors.PhaseEngine, errors.KindTypeMismatch).Path(export).
				Detail("wazero returned %d slots, signature needs %d", len(slots), slotCount(ft.Results)).Build()
		}
		wresults = interp.ValuesFromSlots(ft.Results, slots)
	}
	report.Engine = classify(wresults, err)

	report.Mismatches, report.Match = compare(report.Interp, report.Engine, report.Nondeterministic)
	if !report.Match {
		log.Warn("backends disagree",
			zap.String("export", export),
			zap.Stringer("interp", report.Interp),
			zap.Stringer("engine", report.Engine))
	}
	return report, nil
}

func slotCount(types []wasm.ValType) int {
	n := 0
	for _, t := range types {
		n += t.Slots()
	}
	return n
}

func compare(a, b Outcome, nondet bool) ([]Mismatch, bool) {
	if a.Kind != b.Kind {
		return nil, false
	}
	if a.Kind != Returned {
		return nil, true
	}
	if len(a.Results) != len(b.Results) {
		return nil, false
	}
	var out []Mismatch
	for i := range a.Results {
		if !valuesMatch(a.Results[i], b.Results[i], nondet) {
			out = append(out, Mismatch{Index: i, Interp: a.Results[i], Engine: b.Results[i]})
		}
	}
	return out, len(out) == 0
}

// valuesMatch compares two results. With nondet set, any two NaNs of the
// same type are equal; v128 values match when all lanes do under either
// the f32x4 or the f64x2 view.
func valuesMatch(a, b interp.Value, nondet bool) bool {
	if a.Equal(b) {
		return true
	}
	if !nondet || a.Type() != b.Type() {
		return false
	}
	switch a.Type() {
	case wasm.ValF32:
		return isNaN32(a.F32Bits()) && isNaN32(b.F32Bits())
	case wasm.ValF64:
		return math.IsNaN(a.F64()) && math.IsNaN(b.F64())
	case wasm.ValV128:
		alo, ahi := a.V128()
		blo, bhi := b.V128()
		return (lanes32Match(alo, blo) && lanes32Match(ahi, bhi)) ||
			(lanes64Match(alo, blo) && lanes64Match(ahi, bhi))
	}
	return false
}

func isNaN32(bits uint32) bool {
	return bits&0x7F800000 == 0x7F800000 && bits&0x007FFFFF != 0
}

func lanes32Match(a, b uint64) bool {
	for shift := 0; shift < 64; shift += 32 {
		x, y := uint32(a>>shift), uint32(b>>shift)
		if x != y && !(isNaN32(x) && isNaN32(y)) {
			return false
		}
	}
	return true
}

func lanes64Match(a, b uint64) bool {
	return a == b || math.IsNaN(math.Float64frombits(a)) && math.IsNaN(math.Float64frombits(b))
}
