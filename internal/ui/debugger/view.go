package debugger

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/JohnDoe6345789/winejs/internal/disasm"
	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/ui/colorize"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	regStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorize.RegisterColor))

	importStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorize.AddressColor))

	consoleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// tail is how many recent imports and console lines are shown.
const tail = 8

var registerRows = [][]emulator.Register{
	{emulator.RAX, emulator.RBX, emulator.RCX, emulator.RDX},
	{emulator.RSI, emulator.RDI, emulator.RBP, emulator.RSP},
	{emulator.R8, emulator.R9, emulator.R10, emulator.R11},
	{emulator.R12, emulator.R13, emulator.R14, emulator.R15},
}

func (m *Model) View() string {
	if m.quit {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("winejs debug"))
	b.WriteString(" ")
	b.WriteString(m.name)
	b.WriteString(labelStyle.Render(fmt.Sprintf("  %s  steps %d", m.State(), m.Steps())))
	b.WriteString("\n\n")

	if m.prev != nil {
		b.WriteString(labelStyle.Render("prev "))
		b.WriteString(m.formatLine(*m.prev))
		b.WriteString("\n")
	}
	b.WriteString(labelStyle.Render("next "))
	b.WriteString(m.formatLine(m.next))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(m.registers()),
		" ",
		panelStyle.Render(m.imports()),
	))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(m.console()))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}
	if m.mode == modeCount {
		b.WriteString(m.count.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter run • esc cancel"))
	} else {
		b.WriteString(helpStyle.Render("s step • r run N • c continue • R reset • q quit"))
	}
	return b.String()
}

func (m *Model) formatLine(l disasm.Line) string {
	s := fmt.Sprintf("%s  %-20s  %s", colorize.Address(l.Address), colorize.HexBytes(l.Hex()), colorize.Instruction(l.Text))
	if l.Import != "" {
		s += "  " + importStyle.Render(l.Import)
	}
	if !l.Supported {
		s += "  " + errorStyle.Render("(unsupported)")
	}
	return s
}

func (m *Model) registers() string {
	cpu := m.run.CPU
	var b strings.Builder
	for _, row := range registerRows {
		for i, r := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(regStyle.Render(fmt.Sprintf("%-3s", r.Name(64))))
			b.WriteString(fmt.Sprintf(" %016x", cpu.Reg(r, 64)))
		}
		b.WriteString("\n")
	}
	f := cpu.Flags()
	b.WriteString(regStyle.Render("rip"))
	b.WriteString(fmt.Sprintf(" %016x  ", cpu.RIP()))
	b.WriteString(regStyle.Render("zf"))
	b.WriteString(fmt.Sprintf(" %d  ", b2i(f.ZF)))
	b.WriteString(regStyle.Render("sf"))
	b.WriteString(fmt.Sprintf(" %d", b2i(f.SF)))
	return b.String()
}

func (m *Model) imports() string {
	visited := m.exec.Result().ImportsVisited
	lines := []string{labelStyle.Render(fmt.Sprintf("imports (%d)", len(visited)))}
	for _, sym := range last(visited, tail) {
		lines = append(lines, importStyle.Render(sym.Qualified()))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) console() string {
	out := m.exec.Result().ConsoleOutput
	lines := []string{labelStyle.Render(fmt.Sprintf("console (%d)", len(out)))}
	for _, l := range last(out, tail) {
		lines = append(lines, consoleStyle.Render(l))
	}
	return strings.Join(lines, "\n")
}

func last[T any](s []T, n int) []T {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

func b2i(v bool) int {
	if v {
		return 1
	}
	return 0
}
