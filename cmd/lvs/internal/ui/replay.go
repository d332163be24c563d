// Package ui implements the terminal interface for stepping through
// recorded patch streams, built on bubbletea.
package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/livefir/livespec"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	elementCell = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

type tickMsg time.Time

// ReplayModel steps through NDJSON patch lines, folding each into a
// spec and showing how the element tree accumulates.
type ReplayModel struct {
	lines    []string
	index    int
	interval time.Duration

	spec      *livespec.Spec
	applied   int
	skipped   int
	malformed int

	progress progress.Model
	playing  bool
	done     bool
	width    int
}

// NewReplay builds a replay over lines, advancing one line per interval
// until paused or exhausted.
func NewReplay(lines []string, interval time.Duration) ReplayModel {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	p := progress.New(progress.WithDefaultGradient())
	return ReplayModel{
		lines:    lines,
		interval: interval,
		spec:     livespec.NewSpec(),
		progress: p,
		playing:  true,
		width:    80,
	}
}

func (m ReplayModel) Init() tea.Cmd {
	return m.tick()
}

func (m ReplayModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m ReplayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 8
		if m.progress.Width > 60 {
			m.progress.Width = 60
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			m.playing = !m.playing && !m.done
			if m.playing {
				return m, m.tick()
			}
			return m, nil
		case "n", "right":
			m.step()
			return m, nil
		case "r":
			m.spec = livespec.NewSpec()
			m.index = 0
			m.applied = 0
			m.skipped = 0
			m.malformed = 0
			m.done = false
			m.playing = true
			return m, m.tick()
		}
		return m, nil

	case tickMsg:
		if !m.playing {
			return m, nil
		}
		m.step()
		if m.done {
			return m, nil
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *ReplayModel) step() {
	if m.index >= len(m.lines) {
		m.done = true
		m.playing = false
		return
	}
	line := m.lines[m.index]
	m.index++

	payload, err := livespec.DecodePatchLine(line)
	if err != nil {
		m.malformed++
		return
	}
	if payload == nil {
		m.skipped++
		return
	}
	next, changed := livespec.ApplyUpdate(m.spec, payload)
	if changed {
		m.spec = next
	}
	m.applied++
}

func (m ReplayModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("livespec replay"))
	b.WriteString("\n\n")

	pct := 1.0
	if len(m.lines) > 0 {
		pct = float64(m.index) / float64(len(m.lines))
	}
	b.WriteString("  " + m.progress.ViewAs(pct) + "\n\n")

	b.WriteString(fmt.Sprintf("  %s %s   %s %s   %s %s   %s %s\n",
		labelStyle.Render("line"),
		valueStyle.Render(fmt.Sprintf("%d/%d", m.index, len(m.lines))),
		labelStyle.Render("applied"),
		valueStyle.Render(fmt.Sprintf("%d", m.applied)),
		labelStyle.Render("skipped"),
		valueStyle.Render(fmt.Sprintf("%d", m.skipped)),
		labelStyle.Render("malformed"),
		errorStyle.Render(fmt.Sprintf("%d", m.malformed)),
	))

	renderable := "no"
	if m.spec.Renderable() {
		renderable = "yes"
	}
	b.WriteString(fmt.Sprintf("  %s %s   %s %s   %s %s\n\n",
		labelStyle.Render("elements"),
		valueStyle.Render(fmt.Sprintf("%d", len(m.spec.Elements))),
		labelStyle.Render("root"),
		valueStyle.Render(orDash(m.spec.Root)),
		labelStyle.Render("renderable"),
		valueStyle.Render(renderable),
	))

	keys := make([]string, 0, len(m.spec.Elements))
	for k := range m.spec.Elements {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	const maxShown = 12
	for i, k := range keys {
		if i == maxShown {
			b.WriteString(helpStyle.Render(fmt.Sprintf("    … %d more\n", len(keys)-maxShown)))
			break
		}
		el := m.spec.Elements[k]
		b.WriteString(elementCell.Render(fmt.Sprintf("    %-20s %s (%d children)", k, el.Type, len(el.Children))))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.done:
		b.WriteString(helpStyle.Render("  done · r restart · q quit"))
	case m.playing:
		b.WriteString(helpStyle.Render("  space pause · n step · r restart · q quit"))
	default:
		b.WriteString(helpStyle.Render("  paused · space play · n step · r restart · q quit"))
	}
	b.WriteString("\n")
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// RunReplay runs the replay TUI over lines until the user quits.
func RunReplay(lines []string, interval time.Duration) error {
	p := tea.NewProgram(NewReplay(lines, interval))
	_, err := p.Run()
	return err
}
