package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-interp/crosscheck"
	"github.com/wippyai/wasm-interp/engine"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/interp"
	"github.com/wippyai/wasm-interp/runtime"
	"github.com/wippyai/wasm-interp/trace"
	"github.com/wippyai/wasm-interp/wasm"
)

type options struct {
	wasmFile   string
	funcName   string
	args       string
	configFile string
	traceFile  string
	steps      int
	zstd       bool
	crosscheck bool
	list       bool
	verbose    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.wasmFile, "wasm", "", "Path to core module wasm file")
	flag.StringVar(&opts.funcName, "func", "", "Exported function to call (optional)")
	flag.StringVar(&opts.args, "args", "", "Comma-separated arguments, parsed by the function signature")
	flag.IntVar(&opts.steps, "steps", -1, "Step budget; the run pauses when it is spent (-1 = unlimited)")
	flag.StringVar(&opts.configFile, "config", "", "Interpreter config file (TOML)")
	flag.StringVar(&opts.traceFile, "trace", "", "Write an execution trace to this file")
	flag.BoolVar(&opts.zstd, "zstd", false, "Compress the trace with zstd")
	flag.BoolVar(&opts.crosscheck, "crosscheck", false, "Also run on wazero and compare results")
	flag.BoolVar(&opts.list, "list", false, "List exported functions and exit")
	flag.BoolVar(&opts.verbose, "v", false, "Debug logging to stderr")
	interactive := flag.Bool("i", false, "Interactive step debugger")
	flag.Parse()

	if opts.wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-func name] [-args 1,2] [-steps n] [-trace out.cbor]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -crosscheck -func name")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loaded is everything a run needs before a function is picked.
type loaded struct {
	module *wasm.Module
	reg    *runtime.HostRegistry
	cfg    interp.Config
	rec    *trace.Recorder
	log    *zap.Logger
}

func load(opts options, out io.Writer) (*loaded, error) {
	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return nil, errors.Load("read "+opts.wasmFile, err)
	}
	m, err := wasm.ParseModule(data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	cfg := interp.DefaultConfig()
	if opts.configFile != "" {
		if cfg, err = interp.LoadConfig(opts.configFile); err != nil {
			return nil, err
		}
	}
	log := zap.NewNop()
	if opts.verbose {
		if log, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}
	cfg.Logger = log
	engine.SetLogger(log)

	var rec *trace.Recorder
	if opts.traceFile != "" {
		rec = trace.NewRecorder(0)
		cfg.Tracer = rec
	}

	reg, err := newHostRegistry(out)
	if err != nil {
		return nil, err
	}
	return &loaded{module: m, reg: reg, cfg: cfg, rec: rec, log: log}, nil
}

type export struct {
	name string
	idx  uint32
	typ  *wasm.FuncType
}

func exportedFuncs(m *wasm.Module) []export {
	var out []export
	for _, e := range m.Exports {
		if e.Kind == wasm.KindFunc {
			out = append(out, export{name: e.Name, idx: e.Idx, typ: m.GetFuncType(e.Idx)})
		}
	}
	slices.SortFunc(out, func(a, b export) int { return strings.Compare(a.name, b.name) })
	return out
}

// pickFunc resolves -func, falling back to common entry points.
func pickFunc(exports []export, name string) (export, bool) {
	if name != "" {
		for _, e := range exports {
			if e.name == name {
				return e, true
			}
		}
		return export{}, false
	}
	for _, candidate := range []string{"_start", "run", "main"} {
		if e, ok := pickFunc(exports, candidate); ok {
			return e, true
		}
	}
	if len(exports) == 1 {
		return exports[0], true
	}
	return export{}, false
}

func run(ctx context.Context, opts options, out io.Writer) error {
	l, err := load(opts, out)
	if err != nil {
		return err
	}
	defer func() { _ = l.log.Sync() }()

	exports := exportedFuncs(l.module)
	fmt.Fprintf(out, "Module: %s\n", opts.wasmFile)
	fmt.Fprintf(out, "Functions: %d (%d imported)\n", l.module.NumFuncs(), l.module.NumImportedFuncs())
	fmt.Fprintf(out, "\nExported functions:\n")
	for _, e := range exports {
		fmt.Fprintf(out, "  %s%s\n", e.name, e.typ.String())
	}
	if opts.list {
		return nil
	}

	fn, ok := pickFunc(exports, opts.funcName)
	if !ok {
		if opts.funcName != "" {
			return fmt.Errorf("no exported function %q", opts.funcName)
		}
		fmt.Fprintf(out, "\nNo function specified and no common entry point found.\n")
		fmt.Fprintf(out, "Use -func to specify a function to call.\n")
		return nil
	}
	args, err := parseArgs(opts.args, fn.typ.Params)
	if err != nil {
		return fmt.Errorf("%s: %w", fn.name, err)
	}

	if opts.crosscheck {
		report, err := crosscheck.Run(ctx, l.module, l.reg, fn.name, args,
			crosscheck.Options{Interp: l.cfg, Logger: l.log})
		if err != nil {
			return fmt.Errorf("crosscheck: %w", err)
		}
		fmt.Fprintf(out, "\n%s\n", report)
		if err := writeTrace(l.rec, opts); err != nil {
			return err
		}
		if !report.Match {
			return fmt.Errorf("backends disagree on %s", fn.name)
		}
		return nil
	}

	inst, err := runtime.Instantiate(ctx, l.module, l.reg)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	it := interp.New(inst, l.cfg)
	if err := it.RunStart(ctx); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nCalling %s(%s)...\n", fn.name, formatValues(args))
	th := it.NewThread()
	if opts.steps >= 0 {
		err = runBudgeted(ctx, th, fn, args, opts.steps, out)
	} else {
		var results []interp.Value
		results, err = th.Call(ctx, fn.idx, args...)
		if err == nil {
			fmt.Fprintf(out, "Result: [%s]\n", formatValues(results))
		}
	}
	fmt.Fprintf(out, "Interpreted calls: %d\n", th.NumInterpretedCalls())
	if th.PossibleNondeterminism() {
		fmt.Fprintln(out, "Note: result may depend on NaN bit patterns")
	}
	if terr := writeTrace(l.rec, opts); terr != nil && err == nil {
		err = terr
	}
	if err != nil {
		return fmt.Errorf("call %s: %w", fn.name, err)
	}
	return nil
}

// runBudgeted runs fn with a step budget and reports where it stopped.
func runBudgeted(ctx context.Context, th *interp.Thread, fn export, args []interp.Value, steps int, out io.Writer) error {
	th.StartActivation()
	if err := th.InitFrame(fn.idx, args); err != nil {
		return err
	}
	state, err := th.Run(ctx, steps)
	if err != nil {
		return err
	}
	switch state {
	case interp.StateFinished:
		results := make([]interp.Value, len(fn.typ.Results))
		for i := range results {
			if results[i], err = th.GetReturnValue(i); err != nil {
				return err
			}
		}
		fmt.Fprintf(out, "Result: [%s]\n", formatValues(results))
	case interp.StatePaused:
		if top, ok := th.TopFrame(); ok {
			fmt.Fprintf(out, "Paused after %d steps in func %d at pc %d (depth %d)\n",
				steps, top.Function(), top.PC(), th.FrameCount())
		}
	case interp.StateTrapped:
		return th.Err()
	default:
		if cause := th.Unwound(); cause != nil {
			return cause
		}
		return fmt.Errorf("stopped in state %s", state)
	}
	return nil
}

func writeTrace(rec *trace.Recorder, opts options) error {
	if rec == nil {
		return nil
	}
	c := trace.None
	if opts.zstd {
		c = trace.Zstd
	}
	f, err := os.Create(opts.traceFile)
	if err != nil {
		return fmt.Errorf("create trace: %w", err)
	}
	if _, err := rec.WriteTo(f, c); err != nil {
		_ = f.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	return f.Close()
}
