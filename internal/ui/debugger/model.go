// Package debugger is an interactive single-step debugger for guest
// programs built on bubbletea.
package debugger

import (
	"context"
	"errors"
	"strconv"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/JohnDoe6345789/winejs/internal/disasm"
	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/host"
)

// DefaultBurst is the step count offered by the "run N" prompt.
const DefaultBurst = 100

type mode int

const (
	modeStep mode = iota
	modeCount
)

// Model is the debugger state. It drives one prepared run and rebuilds it
// on reset.
type Model struct {
	ctx  context.Context
	host *host.Host
	name string
	data []byte

	run  *host.Run
	exec *emulator.Execution
	prev *disasm.Line
	next disasm.Line
	err  error

	mode  mode
	count textinput.Model
	quit  bool
}

// New prepares name for stepping.
func New(ctx context.Context, h *host.Host, name string, data []byte) (*Model, error) {
	ti := textinput.New()
	ti.Prompt = "steps: "
	ti.Placeholder = strconv.Itoa(DefaultBurst)
	ti.CharLimit = 9
	ti.Width = 12

	m := &Model{ctx: ctx, host: h, name: name, data: data, count: ti}
	if err := m.reset(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) reset() error {
	run, err := m.host.Prepare(m.ctx, m.data)
	if err != nil {
		return err
	}
	m.run = run
	m.exec = run.CPU.Start(run.Hooks)
	m.prev = nil
	m.err = nil
	m.peek()
	return nil
}

func (m *Model) peek() {
	m.next = disasm.At(m.run.CPU, m.run.CPU.RIP())
}

// Step executes up to n instructions and stops early when the run ends.
func (m *Model) Step(n int) {
	for i := 0; i < n && !m.exec.Done(); i++ {
		line := m.next
		if _, err := m.exec.Step(); err != nil {
			m.err = err
			break
		}
		m.prev = &line
		m.peek()
	}
}

// Steps returns the number of executed instructions.
func (m *Model) Steps() int {
	return m.exec.Result().Steps
}

// State describes why the run is paused or finished.
func (m *Model) State() string {
	res := m.exec.Result()
	switch {
	case errors.Is(m.err, emulator.ErrUnsupportedOpcode):
		return "faulted"
	case m.err != nil:
		return "error"
	case res.Halted:
		return "halted"
	case res.Stopped:
		return "stopped"
	case res.Steps >= m.host.Config().MaxSteps:
		return "exhausted"
	}
	return "paused"
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.mode == modeCount {
		return m.updateCount(key)
	}

	switch key.String() {
	case "ctrl+c", "q":
		m.quit = true
		return m, tea.Quit
	case "s", "n", "enter", " ":
		m.Step(1)
	case "r":
		m.mode = modeCount
		m.count.SetValue("")
		return m, m.count.Focus()
	case "c":
		m.Step(m.host.Config().MaxSteps - m.Steps())
	case "R", "ctrl+r":
		if err := m.reset(); err != nil {
			m.err = err
		}
	}
	return m, nil
}

func (m *Model) updateCount(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		m.quit = true
		return m, tea.Quit
	case "esc":
		m.mode = modeStep
		m.count.Blur()
		return m, nil
	case "enter":
		n := DefaultBurst
		if v, err := strconv.Atoi(m.count.Value()); err == nil && v > 0 {
			n = v
		}
		m.mode = modeStep
		m.count.Blur()
		m.Step(n)
		return m, nil
	}
	var cmd tea.Cmd
	m.count, cmd = m.count.Update(key)
	return m, cmd
}

// Run starts the full-screen program and blocks until the user quits.
func Run(m *Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
