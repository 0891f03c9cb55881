package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/yousuf/loopviz/internal/stepper"
	"github.com/yousuf/loopviz/internal/trace"
)

// Each panel has a distinct, consistent color.
var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - metadata

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")) // White bold - headers

	stackStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")) // Blue

	macroStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")) // Yellow

	microStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")) // Magenta

	timerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")) // Orange

	heapStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14")) // Cyan

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // Green

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // Red

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1).
			Width(28)
)

const spinFrame = "⟳"

// renderView draws one frame: a header line, the four scheduler panels side
// by side, then the heap and console panels.
func renderView(v stepper.View, snippet []string) string {
	var b strings.Builder

	header := fmt.Sprintf("step %d/%d", v.Cursor, v.Length)
	if v.StateName != "" {
		header += "  " + v.StateName
	}
	if v.Animating {
		header += " " + spinFrame
	}
	b.WriteString(titleStyle.Render(header))
	if line := sourceLine(snippet, v.CurrentLine); line != "" {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  line %d: ", v.CurrentLine)) + line)
	}
	b.WriteString("\n")

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		panel("Call Stack", stackStyle, reversed(v.CallStack)),
		panel("Macrotasks", macroStyle, v.MacrotaskQueue),
		panel("Microtasks", microStyle, v.MicrotaskQueue),
		panel("Timers", timerStyle, v.PendingTimers),
	)
	b.WriteString(top)
	b.WriteString("\n")

	bottom := lipgloss.JoinHorizontal(lipgloss.Top,
		panel("Heap", heapStyle, heapLines(v.Heap)),
		panel("Console", lipgloss.NewStyle(), v.ConsoleLog),
	)
	b.WriteString(bottom)
	b.WriteString("\n")
	return b.String()
}

func panel(title string, style lipgloss.Style, items []string) string {
	lines := []string{titleStyle.Render(title)}
	if len(items) == 0 {
		lines = append(lines, dimStyle.Render("(empty)"))
	}
	for _, item := range items {
		lines = append(lines, style.Render(item))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

// reversed puts the top of the stack first.
func reversed(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	return out
}

func heapLines(records []trace.HeapRecord) []string {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, fmt.Sprintf("%s [%s] %s", r.Address, strings.Join(r.OwnerNames, ", "), r.Value))
	}
	return lines
}

func sourceLine(snippet []string, line int) string {
	if line <= 0 || line > len(snippet) {
		return ""
	}
	return strings.TrimSpace(snippet[line-1])
}
