package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-interp/interp"
	"github.com/wippyai/wasm-interp/runtime"
	"github.com/wippyai/wasm-interp/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	breakStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)
)

// disasmContext is the number of instructions shown around the pc.
const disasmContext = 6

type interactiveModel struct {
	err      error
	opts     options
	it       *interp.Interpreter
	th       *interp.Thread
	output   *bytes.Buffer
	result   string
	funcs    []export
	inputs   []textinput.Model
	args     []interp.Value
	steps    int
	selected int
	focusIdx int
	state    modelState
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateDebug
	stateShowResult
)

func newInteractiveModel(opts options) *interactiveModel {
	return &interactiveModel{
		opts:   opts,
		output: &bytes.Buffer{},
		state:  stateSelectFunc,
	}
}

type loadedMsg struct {
	err   error
	it    *interp.Interpreter
	funcs []export
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	ctx := context.Background()

	l, err := load(m.opts, m.output)
	if err != nil {
		return loadedMsg{err: err}
	}
	inst, err := runtime.Instantiate(ctx, l.module, l.reg)
	if err != nil {
		return loadedMsg{err: err}
	}
	it := interp.New(inst, l.cfg)
	if err := it.RunStart(ctx); err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{it: it, funcs: exportedFuncs(l.module)}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					m.startDebug()
					return m, nil
				}
				m.state = stateInputArgs

			case stateInputArgs:
				m.startDebug()
				return m, nil

			case stateShowResult:
				m.backToSelect()
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "s":
			if m.state == stateDebug {
				m.run(1)
				return m, nil
			}

		case "c":
			if m.state == stateDebug {
				m.run(-1)
				return m, nil
			}

		case "b":
			if m.state == stateDebug {
				m.toggleBreakpoint()
				return m, nil
			}

		case "r":
			if m.th != nil && (m.state == stateDebug || m.state == stateShowResult) {
				m.th.Reset()
				m.begin()
				return m, nil
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateDebug, stateShowResult:
				m.backToSelect()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.it = msg.it
		m.funcs = msg.funcs
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.typ.Params))
	for i, p := range f.typ.Params {
		ti := textinput.New()
		ti.Placeholder = p.String()
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) backToSelect() {
	if m.th != nil {
		m.th.Reset()
	}
	m.state = stateSelectFunc
	m.inputs = nil
	m.result = ""
	m.err = nil
}

// startDebug parses the argument fields and stops on the first instruction.
func (m *interactiveModel) startDebug() {
	f := m.funcs[m.selected]
	fields := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		fields[i] = input.Value()
	}
	args, err := parseArgs(strings.Join(fields, ","), f.typ.Params)
	if err != nil {
		m.finish("", err)
		return
	}
	m.args = args
	if m.th == nil {
		m.th = m.it.NewThread()
	}
	m.begin()
}

func (m *interactiveModel) begin() {
	f := m.funcs[m.selected]
	m.output.Reset()
	m.steps = 0
	m.result = ""
	m.err = nil
	m.th.StartActivation()
	if err := m.th.InitFrame(f.idx, m.args); err != nil {
		m.th.Reset()
		m.finish("", err)
		return
	}
	m.state = stateDebug
}

func (m *interactiveModel) run(steps int) {
	before := m.th.NumInterpretedCalls()
	state, err := m.th.Run(context.Background(), steps)
	if steps > 0 {
		m.steps += steps
	}
	if err != nil {
		m.th.Reset()
		m.finish("", err)
		return
	}
	switch state {
	case interp.StatePaused:
		return
	case interp.StateFinished:
		f := m.funcs[m.selected]
		results := make([]interp.Value, len(f.typ.Results))
		for i := range results {
			results[i], _ = m.th.GetReturnValue(i)
		}
		m.th.Reset()
		m.finish(fmt.Sprintf("[%s] after %d calls", formatValues(results), m.th.NumInterpretedCalls()-before), nil)
	case interp.StateTrapped:
		err := m.th.Err()
		m.th.Reset()
		m.finish("", err)
	default:
		err := m.th.Unwound()
		if err == nil {
			err = fmt.Errorf("stopped in state %s", state)
		}
		m.th.Reset()
		m.finish("", err)
	}
}

func (m *interactiveModel) finish(result string, err error) {
	m.result = result
	m.err = err
	m.state = stateShowResult
}

func (m *interactiveModel) toggleBreakpoint() {
	top, ok := m.th.TopFrame()
	if !ok {
		return
	}
	fn, pc := top.Function(), top.PC()
	if _, err := m.it.SetBreakpoint(fn, pc, !m.it.GetBreakpoint(fn, pc)); err != nil {
		m.err = err
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state == stateSelectFunc {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.it == nil {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Debugger"))
	b.WriteString(" ")
	b.WriteString(m.opts.wasmFile)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("Module exports no functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to debug:\n\n")
		for i, f := range m.funcs {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + formatFunc(f)))
			} else {
				b.WriteString(cursor + formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter debug • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.typ.Params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter start • esc back"))

	case stateDebug:
		m.viewDebug(&b)
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("s step • c continue • b breakpoint • r restart • esc back • q quit"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n")
		m.viewOutput(&b)
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter continue • r restart • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) viewDebug(b *strings.Builder) {
	top, ok := m.th.TopFrame()
	if !ok {
		b.WriteString("No frame.\n")
		return
	}
	fmt.Fprintf(b, "State: %s  steps: %d  depth: %d\n", m.th.State(), m.steps, m.th.FrameCount())
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	code := top.Code()
	for _, line := range disassemble(code.Orig, top.PC(), disasmContext) {
		marker := "  "
		if m.it.GetBreakpoint(top.Function(), line.PC) {
			marker = breakStyle.Render("● ")
		}
		text := fmt.Sprintf("%5d  %s", line.PC, line.String())
		if line.PC == top.PC() {
			b.WriteString(marker + selectedStyle.Render("> "+text))
		} else {
			b.WriteString(marker + "  " + text)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nFrames:\n")
	for i := m.th.FrameCount() - 1; i >= 0; i-- {
		f, _ := m.th.Frame(i)
		fmt.Fprintf(b, "  #%d %s pc %d\n", i, funcStyle.Render(fmt.Sprintf("func[%d]", f.Function())), f.PC())
	}

	b.WriteString("\nLocals:\n")
	for i := 0; i < top.LocalCount(); i++ {
		fmt.Fprintf(b, "  $%d = %s\n", i, typeStyle.Render(top.Local(i).String()))
	}

	b.WriteString("\nStack:\n")
	if top.StackHeight() == 0 {
		b.WriteString("  (empty)\n")
	}
	for i := top.StackHeight() - 1; i >= 0; i-- {
		fmt.Fprintf(b, "  [%d] %s\n", i, typeStyle.Render(top.Stack(i).String()))
	}
	m.viewOutput(b)
}

func (m *interactiveModel) viewOutput(b *strings.Builder) {
	if m.output.Len() == 0 {
		return
	}
	b.WriteString("\nOutput:\n")
	b.WriteString(m.output.String())
	if !bytes.HasSuffix(m.output.Bytes(), []byte("\n")) {
		b.WriteString("\n")
	}
}

func formatFunc(f export) string {
	return funcStyle.Render(f.name) + typeStyle.Render(f.typ.String())
}

// disassemble decodes body and returns up to n instructions on either side
// of the one at pc. Decoding stops at the first undecodable byte.
func disassemble(body []byte, pc, n int) []wasm.Instruction {
	var all []wasm.Instruction
	cur := 0
	for off := 0; off < len(body); {
		in, err := wasm.DecodeInstruction(body, off)
		if err != nil {
			break
		}
		if in.PC <= pc {
			cur = len(all)
		}
		all = append(all, in)
		off += in.Len
	}
	lo, hi := max(cur-n, 0), min(cur+n+1, len(all))
	return all[lo:hi]
}

func runInteractive(opts options) error {
	p := tea.NewProgram(newInteractiveModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
