package picker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"go.klb.dev/wayclip/internal/history"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4ecdc4"))

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffe66d")).
			Background(lipgloss.Color("#2d3436"))

	itemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f1faee"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// TUI is a terminal picker. The daemon must own a terminal, as when it is
// started from a drop-down terminal.
type TUI struct {
	opts Options
	in   io.Reader
	out  io.Writer
}

// NewTUI returns a terminal picker bound to the process's stdin and stdout.
func NewTUI(opts Options) (*TUI, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stdout.Fd()) {
		return nil, errors.New("tui picker needs a terminal on stdin and stdout")
	}
	return &TUI{opts: opts, in: os.Stdin, out: os.Stdout}, nil
}

func (t *TUI) Name() string { return BackendTUI }

// Show runs the list until the user picks an entry or escapes.
func (t *TUI) Show(ctx context.Context, entries []history.Entry) (Result, error) {
	if len(entries) == 0 {
		return Result{Outcome: Cancelled}, nil
	}
	p := tea.NewProgram(newListModel(entries, t.opts),
		tea.WithContext(ctx),
		tea.WithInput(t.in),
		tea.WithOutput(t.out),
		tea.WithAltScreen(),
	)
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("tui picker: %w", err)
	}
	return final.(listModel).result, nil
}

// listModel is the bubbletea model of the TUI picker.
type listModel struct {
	entries []history.Entry
	labels  []string
	visible []int
	cursor  int
	offset  int

	filter     textinput.Model
	title      string
	lines      int
	ignoreCase bool

	result Result
}

func newListModel(entries []history.Entry, o Options) listModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "filter"
	ti.Focus()
	ti.PromptStyle = titleStyle

	lines := o.Lines
	if lines <= 0 {
		lines = 15
	}
	m := listModel{
		entries:    entries,
		labels:     make([]string, len(entries)),
		filter:     ti,
		title:      o.Title,
		lines:      lines,
		ignoreCase: o.IgnoreCase,
	}
	for i, e := range entries {
		m.labels[i] = Label(e, o.LabelWidth)
	}
	m.refilter()
	return m
}

func (m listModel) Init() tea.Cmd { return textinput.Blink }

func (m listModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			m.result = Result{Outcome: Cancelled}
			return m, tea.Quit
		case tea.KeyEnter:
			if len(m.visible) > 0 {
				m.result = selected(m.entries[m.visible[m.cursor]])
			}
			return m, tea.Quit
		case tea.KeyUp, tea.KeyCtrlP:
			m.move(-1)
			return m, nil
		case tea.KeyDown, tea.KeyCtrlN, tea.KeyTab:
			m.move(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	prev := m.filter.Value()
	m.filter, cmd = m.filter.Update(msg)
	if m.filter.Value() != prev {
		m.refilter()
	}
	return m, cmd
}

func (m *listModel) move(delta int) {
	if len(m.visible) == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.visible)-1)
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.lines {
		m.offset = m.cursor - m.lines + 1
	}
}

// refilter keeps the entries whose label contains every word of the filter.
func (m *listModel) refilter() {
	words := strings.Fields(m.filter.Value())
	if m.ignoreCase {
		for i, w := range words {
			words[i] = strings.ToLower(w)
		}
	}
	m.visible = m.visible[:0]
	for i, l := range m.labels {
		if m.ignoreCase {
			l = strings.ToLower(l)
		}
		match := true
		for _, w := range words {
			if !strings.Contains(l, w) {
				match = false
				break
			}
		}
		if match {
			m.visible = append(m.visible, i)
		}
	}
	m.cursor, m.offset = 0, 0
}

func (m listModel) View() string {
	var b strings.Builder
	if m.title != "" {
		b.WriteString(titleStyle.Render(m.title))
		b.WriteByte(' ')
	}
	b.WriteString(m.filter.View())
	b.WriteByte('\n')

	end := min(m.offset+m.lines, len(m.visible))
	for i := m.offset; i < end; i++ {
		label := m.labels[m.visible[i]]
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("▸ " + label))
		} else {
			b.WriteString(itemStyle.Render("  " + label))
		}
		b.WriteByte('\n')
	}
	b.WriteString(helpStyle.Render(fmt.Sprintf("%d/%d  ↑/↓ move  enter paste  esc cancel", len(m.visible), len(m.entries))))
	return b.String()
}
