package picker

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func press(t *testing.T, m listModel, keys ...tea.KeyMsg) (listModel, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(k)
		m = next.(listModel)
	}
	return m, cmd
}

func typed(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func isQuit(t *testing.T, cmd tea.Cmd) bool {
	t.Helper()
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestListModelSelect(t *testing.T) {
	m := newListModel(entries("alpha", "beta", "gamma"), Options{})
	m, cmd := press(t, m,
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyUp},
		tea.KeyMsg{Type: tea.KeyEnter},
	)
	require.True(t, isQuit(t, cmd))
	assert.Equal(t, Selected, m.result.Outcome)
	assert.Equal(t, "beta", m.result.Text)
	assert.Equal(t, 1, m.result.Handle.Index)
}

func TestListModelCursorStaysInRange(t *testing.T) {
	m := newListModel(entries("a", "b"), Options{})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.cursor)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlN}, tea.KeyMsg{Type: tea.KeyCtrlN}, tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Equal(t, 1, m.cursor)
}

func TestListModelFilter(t *testing.T) {
	m := newListModel(entries("Hello world", "hello there", "goodbye world"), Options{IgnoreCase: true})
	m, _ = press(t, m, typed("hello"))
	assert.Equal(t, []int{0, 1}, m.visible)

	m, _ = press(t, m, typed(" WORLD"))
	assert.Equal(t, []int{0}, m.visible)

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, isQuit(t, cmd))
	assert.Equal(t, "Hello world", m.result.Text)
}

func TestListModelFilterCaseSensitive(t *testing.T) {
	m := newListModel(entries("Hello", "hello"), Options{})
	m, _ = press(t, m, typed("hel"))
	assert.Equal(t, []int{1}, m.visible)
}

func TestListModelCancel(t *testing.T) {
	for _, k := range []tea.KeyType{tea.KeyEsc, tea.KeyCtrlC} {
		m := newListModel(entries("a"), Options{})
		m, cmd := press(t, m, tea.KeyMsg{Type: k})
		require.True(t, isQuit(t, cmd))
		assert.Equal(t, Cancelled, m.result.Outcome)
	}
}

func TestListModelEnterWithNoMatch(t *testing.T) {
	m := newListModel(entries("a"), Options{})
	m, cmd := press(t, m, typed("zzz"), tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, isQuit(t, cmd))
	assert.Equal(t, Cancelled, m.result.Outcome)
}

func TestListModelScrolls(t *testing.T) {
	m := newListModel(entries("1", "2", "3", "4", "5"), Options{Lines: 2})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 3, m.cursor)
	assert.Equal(t, 2, m.offset)

	view := m.View()
	assert.Contains(t, view, "4")
	assert.NotContains(t, view, "  1\n")
	assert.Contains(t, view, "5/5")
}
