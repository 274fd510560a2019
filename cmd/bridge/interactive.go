package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// stat is one labelled counter shown in the status view.
type stat struct {
	label string
	value string
}

type statusModel struct {
	err     error
	title   string
	spinner spinner.Model
	stats   func() []stat
	work    func() error
	current []stat
	started time.Time
	elapsed time.Duration
	done    bool
}

type tickMsg time.Time

type workDoneMsg struct {
	err error
}

func newStatusModel(title string, stats func() []stat, work func() error) *statusModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return &statusModel{
		title:   title,
		spinner: s,
		stats:   stats,
		work:    work,
		started: time.Now(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *statusModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick(), m.runWork)
}

func (m *statusModel) runWork() tea.Msg {
	return workDoneMsg{err: m.work()}
}

func (m *statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case tickMsg:
		m.current = m.stats()
		if m.done {
			return m, nil
		}
		return m, tick()

	case workDoneMsg:
		m.done = true
		m.err = msg.err
		m.elapsed = time.Since(m.started)
		m.current = m.stats()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *statusModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Bridge"))
	b.WriteString(" ")
	b.WriteString(m.title)
	b.WriteString("\n\n")

	for _, s := range m.current {
		b.WriteString(labelStyle.Render(s.label))
		b.WriteString(valueStyle.Render(s.value))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case !m.done:
		b.WriteString(m.spinner.View())
		b.WriteString(fmt.Sprintf(" running for %s\n\n", time.Since(m.started).Round(time.Millisecond)))
		b.WriteString(helpStyle.Render("q quit"))
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	default:
		b.WriteString(resultStyle.Render(fmt.Sprintf("done in %s", m.elapsed.Round(time.Millisecond))))
	}
	b.WriteString("\n")
	return b.String()
}

// runStatus shows the status view while work runs.
func runStatus(title string, stats func() []stat, work func() error) error {
	m := newStatusModel(title, stats, work)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return err
	}
	return m.err
}

// printStats writes the final counters in plain text.
func printStats(w io.Writer, stats []stat) {
	for _, s := range stats {
		fmt.Fprintf(w, "%-14s%s\n", s.label+":", s.value)
	}
}
