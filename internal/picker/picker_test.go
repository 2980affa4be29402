package picker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/wayclip/internal/history"
)

func TestLabel(t *testing.T) {
	e := history.Entry{Text: "  multi\nline\t\ttext  "}
	assert.Equal(t, "multi line text", Label(e, 0))
	assert.Equal(t, "multi…", Label(e, 6))

	wide := history.Entry{Text: "日本語のテキスト"}
	assert.Equal(t, "日本…", Label(wide, 6), "wide runes count two cells")

	long := history.Entry{Text: strings.Repeat("x", DefaultLabelWidth+50)}
	assert.Len(t, Label(long, 0), DefaultLabelWidth-1+len("…"))
}

func TestNewPicker(t *testing.T) {
	p, err := New("", Options{Command: "wofi"})
	require.NoError(t, err)
	assert.Equal(t, "wofi", p.Name())

	_, err = New("gtk", Options{})
	assert.ErrorContains(t, err, "unknown picker")
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "selected", Selected.String())
	assert.Equal(t, "cancelled", Cancelled.String())
}
