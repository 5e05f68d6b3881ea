package interp

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

// Interpreter executes the functions of one instance. It owns the code map
// shared by all of its threads.
type Interpreter struct {
	host   Host
	module *wasm.Module
	codes  *CodeMap
	cfg    Config
}

// New creates an interpreter over host. A zero MaxStackBytes or
// InitialStackSlots takes its default and a nil Logger discards output.
func New(host Host, cfg Config) *Interpreter {
	cfg.normalize()
	m := host.Module()
	return &Interpreter{
		host:   host,
		module: m,
		codes:  NewCodeMap(m, cfg.Logger),
		cfg:    cfg,
	}
}

// Host returns the instance the interpreter executes against.
func (i *Interpreter) Host() Host {
	return i.host
}

// Config returns the effective configuration.
func (i *Interpreter) Config() Config {
	return i.cfg
}

// CodeMap returns the function code cache.
func (i *Interpreter) CodeMap() *CodeMap {
	return i.codes
}

// NewThread creates a thread with empty stacks.
func (i *Interpreter) NewThread() *Thread {
	return newThread(i)
}

// SetBreakpoint arms or disarms a breakpoint at byte offset pc of a function
// body and returns the previous setting.
func (i *Interpreter) SetBreakpoint(funcIdx uint32, pc int, enabled bool) (bool, error) {
	prev, err := i.codes.SetBreakpoint(funcIdx, pc, enabled)
	if err == nil && prev != enabled {
		i.cfg.Logger.Debug("breakpoint changed",
			zap.Uint32("func", funcIdx), zap.Int("pc", pc), zap.Bool("enabled", enabled))
	}
	return prev, err
}

// GetBreakpoint reports whether a breakpoint is armed at pc.
func (i *Interpreter) GetBreakpoint(funcIdx uint32, pc int) bool {
	return i.codes.GetBreakpoint(funcIdx, pc)
}

// SetFunctionCode replaces a function body, discarding its side table and
// breakpoints.
func (i *Interpreter) SetFunctionCode(funcIdx uint32, body wasm.FuncBody) error {
	return i.codes.SetFunctionCode(funcIdx, body)
}

// RunStart runs the module's start function, if any, on a fresh thread.
func (i *Interpreter) RunStart(ctx context.Context) error {
	if i.module.Start == nil {
		return nil
	}
	fn := *i.module.Start
	if _, err := i.NewThread().Call(ctx, fn); err != nil {
		return errors.New(errors.PhaseInstantiate, errors.KindTrap).
			Path("start", fmt.Sprint(fn)).Cause(err).Build()
	}
	return nil
}
